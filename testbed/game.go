package testbed

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/hiroki-sone/prism/engine"
	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/renderer"
	"github.com/hiroki-sone/prism/engine/renderer/device"
	"github.com/hiroki-sone/prism/engine/renderer/gpu"
	"github.com/hiroki-sone/prism/engine/scene"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	world  *scene.Scene
	meshes []*scene.Mesh

	width  uint32
	height uint32
}

func NewTestGame(config *engine.ApplicationConfig) (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	state := g.State.(*gameState)

	dev := renderer.Device()
	views := renderer.Views()
	copyQueue := renderer.CopyQueue()

	world, err := scene.NewScene(dev, views, "testbed")
	if err != nil {
		return err
	}
	state.world = world

	ground, err := scene.NewMesh(dev, copyQueue, views, groundDesc())
	if err != nil {
		return err
	}
	state.meshes = append(state.meshes, ground)
	if err := world.AddObject(ground, scene.Stationary{Transform: mgl32.Ident4()}); err != nil {
		return err
	}

	// Two cubes spinning at different rates, one orbiting.
	cube1, err := scene.NewMesh(dev, copyQueue, views, cubeDesc("cube_1", 1.0))
	if err != nil {
		return err
	}
	state.meshes = append(state.meshes, cube1)
	if err := world.AddObject(cube1, scene.ConstantRotation{
		Base:             mgl32.Translate3D(0, 1, 0),
		Axis:             mgl32.Vec3{0, 1, 0},
		DegreesPerSecond: 45,
	}); err != nil {
		return err
	}

	cube2, err := scene.NewMesh(dev, copyQueue, views, cubeDesc("cube_2", 0.5))
	if err != nil {
		return err
	}
	state.meshes = append(state.meshes, cube2)
	if err := world.AddObject(cube2, scene.Custom(func(seconds float64) mgl32.Mat4 {
		orbit := mgl32.HomogRotate3DY(mgl32.DegToRad(30 * float32(seconds)))
		return orbit.Mul4(mgl32.Translate3D(3, 1, 0))
	})); err != nil {
		return err
	}

	if err := world.SetCamera(scene.Camera{
		View:       mgl32.LookAtV(mgl32.Vec3{6, 4, 6}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 1, 0}),
		Projection: mgl32.Perspective(mgl32.DegToRad(60), aspect(state), 0.1, 100),
	}); err != nil {
		return err
	}

	return world.Build(renderer.GfxQueue())
}

func (g *TestGame) Update(deltaTime, elapsed float64) error {
	state := g.State.(*gameState)

	if err := state.world.Advance(elapsed); err != nil {
		return err
	}

	if frame := renderer.FrameCount(); frame > 0 && frame%300 == 0 {
		fps, frameTime := core.MetricsFrame()
		core.LogInfo(fmt.Sprintf("frame %d: %5.1f FPS (%4.2fms)", frame, fps, frameTime))
	}
	return nil
}

func (g *TestGame) Render(ctx *gpu.CommandContext, backBuffer device.Buffer, rtv gpu.Rtv, deltaTime float64) error {
	state := g.State.(*gameState)
	return state.world.RecordUpdate(ctx.CommandList())
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)

	// Nothing may be in flight when buffers are released.
	if err := renderer.Flush(); err != nil {
		return err
	}

	if state.world != nil {
		state.world.Release()
	}
	for _, m := range state.meshes {
		m.Release()
	}
	return nil
}

func aspect(state *gameState) float32 {
	if state.height == 0 {
		return 16.0 / 9.0
	}
	return float32(state.width) / float32(state.height)
}

// groundDesc is a 10x10 quad on the XZ plane.
func groundDesc() scene.MeshDesc {
	up := mgl32.Vec3{0, 1, 0}
	return scene.MeshDesc{
		Name: "ground",
		Positions: []mgl32.Vec3{
			{-5, 0, -5}, {5, 0, -5}, {5, 0, 5}, {-5, 0, 5},
		},
		Normals: []mgl32.Vec3{up, up, up, up},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func cubeDesc(name string, halfExtent float32) scene.MeshDesc {
	h := halfExtent
	positions := []mgl32.Vec3{
		{-h, -h, -h}, {h, -h, -h}, {h, h, -h}, {-h, h, -h},
		{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h},
	}
	normals := make([]mgl32.Vec3, len(positions))
	for i, p := range positions {
		normals[i] = p.Normalize()
	}
	return scene.MeshDesc{
		Name:      name,
		Positions: positions,
		Normals:   normals,
		Indices: []uint32{
			0, 1, 2, 0, 2, 3, // back
			5, 4, 7, 5, 7, 6, // front
			4, 0, 3, 4, 3, 7, // left
			1, 5, 6, 1, 6, 2, // right
			3, 2, 6, 3, 6, 7, // top
			4, 5, 1, 4, 1, 0, // bottom
		},
	}
}
