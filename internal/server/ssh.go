// Package server exposes the editor over SSH as a terminal map previewer.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gliderlabs/ssh"

	"webditor/internal/editor"
	"webditor/internal/log"
	"webditor/internal/render"
)

// Editor is the part of the editor loop a session needs.
type Editor interface {
	Edits() chan<- editor.Edit
	AddViewer(name string) (string, editor.ViewerChan)
	RemoveViewer(id string)
}

// SSHServer wraps the SSH listener and editor integration.
type SSHServer struct {
	editor    Editor
	addr      string
	hostKey   string
	cellScale int
	frameRate int
	srv       *ssh.Server
}

// NewSSHServer creates a new SSH server bound to the given address.
// cellScale is the number of canvas pixels per terminal column.
func NewSSHServer(addr, hostKey string, ed Editor, cellScale, frameRate int) *SSHServer {
	return &SSHServer{
		editor:    ed,
		addr:      addr,
		hostKey:   hostKey,
		cellScale: cellScale,
		frameRate: frameRate,
	}
}

// Start begins listening for SSH connections. It blocks until the server
// is shut down.
func (s *SSHServer) Start() error {
	s.srv = &ssh.Server{
		Addr: s.addr,
		Handler: func(sess ssh.Session) {
			s.handleSession(sess)
		},
	}

	// Set host key
	if err := s.srv.SetOption(ssh.HostKeyFile(s.hostKey)); err != nil {
		return fmt.Errorf("set host key: %w", err)
	}

	log.Infof("SSH previewer listening on %s", s.addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, ssh.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes the listener and waits for sessions until ctx is done.
func (s *SSHServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *SSHServer) handleSession(sess ssh.Session) {
	// Require PTY
	ptyReq, winCh, ok := sess.Pty()
	if !ok {
		fmt.Fprintln(sess, "Error: PTY required. Use: ssh -t ...")
		return
	}

	username := sess.User()
	if username == "" {
		username = "anonymous"
	}

	viewerID, snapCh := s.editor.AddViewer(username)
	log.WithField("viewer", viewerID).Info("viewer connected")
	defer func() {
		s.editor.RemoveViewer(viewerID)
		log.WithField("viewer", viewerID).Info("viewer disconnected")
	}()

	ps := newSession(s.editor, sess, ptyReq.Window.Width, ptyReq.Window.Height, s.cellScale)

	// Setup terminal
	io.WriteString(sess, render.EnableAltScreen())
	io.WriteString(sess, render.HideCursor())
	io.WriteString(sess, render.EnableMouse())
	io.WriteString(sess, render.ClearScreen())
	defer func() {
		io.WriteString(sess, render.DisableMouse())
		io.WriteString(sess, render.ShowCursor())
		io.WriteString(sess, render.DisableAltScreen())
	}()

	inputCh := make(chan []Input, 64)
	quitCh := make(chan struct{})

	// Goroutine: read input
	go func() {
		defer close(quitCh)
		var p inputParser
		buf := make([]byte, 256)
		for {
			n, err := sess.Read(buf)
			if err != nil {
				return
			}
			inputs := p.Feed(buf[:n])
			if len(inputs) == 0 {
				continue
			}
			select {
			case inputCh <- inputs:
			case <-sess.Context().Done():
				return
			}
		}
	}()

	// Resizes are applied on the session goroutine; the controller is not
	// shared.
	resizeCh := make(chan ssh.Window, 4)
	go func() {
		for win := range winCh {
			select {
			case resizeCh <- win:
			case <-sess.Context().Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(editor.FrameInterval(s.frameRate))
	defer ticker.Stop()

	for {
		select {
		case <-quitCh:
			return
		case <-sess.Context().Done():
			return
		case inputs := <-inputCh:
			for _, in := range inputs {
				if ps.handle(in) {
					return
				}
			}
		case win := <-resizeCh:
			ps.resize(win.Width, win.Height)
		case snap, ok := <-snapCh:
			if !ok {
				return
			}
			ps.setSnapshot(snap)
		case <-ticker.C:
			ps.ctrl.Frame()
		}
		ps.flush()
	}
}
