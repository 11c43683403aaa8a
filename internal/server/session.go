package server

import (
	"image"
	"io"

	"webditor/internal/editor"
	"webditor/internal/log"
	"webditor/internal/render"
)

// session is one terminal viewer: a controller over the shared world
// surface and a diff renderer writing to the terminal.
type session struct {
	editor Editor
	out    io.Writer
	engine *render.Engine
	ctrl   *render.Controller
	width  int
	height int
	snap   editor.Snapshot
	dirty  bool
}

func newSession(ed Editor, out io.Writer, width, height, scale int) *session {
	s := &session{
		editor: ed,
		out:    out,
		engine: render.NewEngine(width, height, scale),
		width:  width,
		height: height,
	}
	s.ctrl = render.NewController(render.Viewport{})
	s.ctrl.OnPaint = func(*image.RGBA) { s.dirty = true }
	s.ctrl.OnClick = func(x, y int) {
		s.submit(editor.Edit{Kind: editor.EditSelectAt, X: x, Y: y})
	}
	s.ctrl.Resize(s.engine.CanvasSize())
	return s
}

// submit queues an edit without blocking the session.
func (s *session) submit(e editor.Edit) {
	select {
	case s.editor.Edits() <- e:
	default:
		log.WithField("kind", e.Kind).Debugf("Edit queue full, dropping edit")
	}
}

// handle applies one input. It reports whether the session should end.
func (s *session) handle(in Input) bool {
	switch in.Kind {
	case InputQuit:
		return true
	case InputScroll:
		s.ctrl.Scroll(in.DX, in.DY)
	case InputReload:
		if s.snap.Doc == nil {
			s.submit(editor.Edit{Kind: editor.EditReloadDocument})
			break
		}
		s.submit(editor.Edit{Kind: editor.EditReloadTileset})
		s.submit(editor.Edit{Kind: editor.EditReloadImages})
	case InputMouse:
		s.mouse(in)
	}
	return false
}

func (s *session) mouse(in Input) {
	if in.Action == MouseWheel {
		s.ctrl.Scroll(0, in.DY)
		return
	}
	x, y := s.engine.CellToCanvas(in.Col, in.Row)
	mapRows := s.height - render.StatusRows
	switch in.Action {
	case MousePress:
		if in.Button != 0 || in.Row >= mapRows {
			return
		}
		s.ctrl.PointerDown(x, y)
	case MouseDrag:
		if in.Row >= mapRows {
			s.ctrl.PointerLeave()
			s.dirty = true
			return
		}
		s.ctrl.PointerMove(x, y)
	case MouseRelease:
		if s.ctrl.State() != render.Dragging {
			return
		}
		s.ctrl.PointerUp(x, y)
	}
	s.dirty = true
}

func (s *session) resize(width, height int) {
	s.width, s.height = width, height
	s.engine.Resize(width, height)
	s.ctrl.Resize(s.engine.CanvasSize())
}

func (s *session) setSnapshot(snap editor.Snapshot) {
	s.snap = snap
	if snap.World == nil {
		// Nothing composed yet; keep showing the status row.
		s.dirty = true
		return
	}
	s.ctrl.SetWorld(snap.World)
}

func (s *session) status() render.Status {
	st := render.Status{
		View:     s.ctrl.View(),
		Dragging: s.ctrl.State() == render.Dragging,
	}
	if s.snap.Doc != nil {
		st.MapName = s.snap.Doc.Name
	}
	if u, ok := s.snap.SelectedUnit(); ok {
		st.Selection = u.Name
	}
	if s.snap.Err != nil {
		st.Message = s.snap.Err.Error()
	}
	return st
}

// flush writes the terminal diff when something changed.
func (s *session) flush() {
	if !s.dirty {
		return
	}
	s.dirty = false
	out := s.engine.Render(s.ctrl.Canvas(), s.width, s.height, s.status())
	if len(out) > 0 {
		io.WriteString(s.out, out)
	}
}
