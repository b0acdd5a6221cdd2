package bridge

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/vultuk/whatsapp-translator/internal/constants"
	apperrors "github.com/vultuk/whatsapp-translator/internal/errors"
	"github.com/vultuk/whatsapp-translator/pkg/bridge/types"

	"github.com/sirupsen/logrus"
)

// Config controls the supervised subprocess
type Config struct {
	BinaryPath string
	DataDir    string
	Verbose    bool

	SendTimeout           time.Duration
	ProfilePictureTimeout time.Duration
	StopGrace             time.Duration

	// MaxImageUploadBytes caps the decoded size of outbound images.
	// Zero selects the default.
	MaxImageUploadBytes int64
}

func (c *Config) applyDefaults() {
	if c.SendTimeout <= 0 {
		c.SendTimeout = constants.DefaultSendTimeoutSec * time.Second
	}
	if c.ProfilePictureTimeout <= 0 {
		c.ProfilePictureTimeout = constants.DefaultProfilePictureTimeoutSec * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = constants.DefaultStopGraceSec * time.Second
	}
	if c.MaxImageUploadBytes <= 0 {
		c.MaxImageUploadBytes = constants.MaxImageUploadBytes
	}
}

// Supervisor owns the provider subprocess: it spawns it, feeds its
// stdout through the frame decoder into the router, writes command
// frames to its stdin and reacts to process exit by failing all
// pending requests and publishing a single disconnected event.
//
// The stdin handle is held open for the whole process lifetime; the
// provider treats a closed stdin as a shutdown signal, so it is only
// ever closed after the process has exited.
type Supervisor struct {
	cfg        Config
	logger     *logrus.Logger
	router     *Router
	correlator *Correlator

	mu            sync.Mutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	writer        *FrameWriter
	state         types.ConnectionState
	stopRequested bool
	done          chan struct{}
}

// NewSupervisor wires a supervisor with its router and correlator.
// Handlers and subscribers are registered on Router() before Start.
func NewSupervisor(cfg Config, logger *logrus.Logger) *Supervisor {
	cfg.applyDefaults()
	correlator := NewCorrelator(logger)
	s := &Supervisor{
		cfg:        cfg,
		logger:     logger,
		correlator: correlator,
		state:      types.StateDisconnected,
	}
	s.router = NewRouter(correlator, logger)
	s.router.AddHandler(s.trackState)
	return s
}

// Router exposes the event router for handler and subscriber setup
func (s *Supervisor) Router() *Router { return s.router }

// State returns the current connection state
func (s *Supervisor) State() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingRequests reports the size of the correlation table
func (s *Supervisor) PendingRequests() int {
	return s.correlator.PendingCount()
}

// Done returns a channel closed when the current subprocess exits.
// Only valid after a successful Start.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Start spawns the subprocess and begins draining its streams. It
// fails with a PROCESS_SPAWN error if the binary cannot be executed.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return apperrors.New(apperrors.ErrCodeInternalError, "bridge process already running")
	}

	args := []string{"--data-dir", s.cfg.DataDir}
	if s.cfg.Verbose {
		args = append(args, "--verbose")
	}
	cmd := exec.Command(s.cfg.BinaryPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return apperrors.NewSpawnError(s.cfg.BinaryPath, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperrors.NewSpawnError(s.cfg.BinaryPath, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apperrors.NewSpawnError(s.cfg.BinaryPath, err)
	}

	if err := cmd.Start(); err != nil {
		return apperrors.NewSpawnError(s.cfg.BinaryPath, err)
	}

	s.logger.WithFields(logrus.Fields{
		"binary":   s.cfg.BinaryPath,
		"data_dir": s.cfg.DataDir,
		"pid":      cmd.Process.Pid,
	}).Info("Bridge process started")

	writer := NewFrameWriter(stdin)
	done := make(chan struct{})

	s.cmd = cmd
	s.stdin = stdin
	s.writer = writer
	s.state = types.StateConnecting
	s.stopRequested = false
	s.done = done
	s.correlator.Bind(writer)

	frames := make(chan []byte, constants.DefaultFrameBufferSize)
	go s.readLoop(stdout, frames)
	go s.dispatchLoop(frames)
	go s.stderrLoop(stderr)
	go s.expiryLoop(done)
	go s.waitLoop(cmd, stdin, done)

	return nil
}

// readLoop drains stdout into the frame channel. It blocks only on
// the underlying read; dispatch is offloaded to its own goroutine.
func (s *Supervisor) readLoop(stdout io.Reader, frames chan<- []byte) {
	fr := NewFrameReader(stdout)
	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			if err != io.EOF {
				s.logger.WithError(err).Debug("Bridge stdout closed")
			}
			close(frames)
			return
		}
		frames <- frame
	}
}

func (s *Supervisor) dispatchLoop(frames <-chan []byte) {
	for frame := range frames {
		s.router.Dispatch(frame)
	}
}

// stderrLoop passes subprocess stderr through to the logger. It is
// never parsed as protocol.
func (s *Supervisor) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s.logger.WithField("source", "bridge-stderr").Debug(line)
	}
}

// expiryLoop drives the correlator's deadline sweep until the
// subprocess exits.
func (s *Supervisor) expiryLoop(done <-chan struct{}) {
	ticker := time.NewTicker(constants.DefaultExpiryTickMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			s.correlator.ExpireOverdue(now)
		}
	}
}

// waitLoop reaps the subprocess. Whether the exit was requested or
// not, every outstanding command fails and exactly one disconnected
// event is published.
func (s *Supervisor) waitLoop(cmd *exec.Cmd, stdin io.WriteCloser, done chan struct{}) {
	err := cmd.Wait()

	s.mu.Lock()
	requested := s.stopRequested
	s.cmd = nil
	s.stdin = nil
	s.writer = nil
	s.state = types.StateDisconnected
	s.mu.Unlock()

	// The process is gone; the pipe can be released now.
	_ = stdin.Close()

	s.correlator.Bind(nil)
	failed := s.correlator.FailAll(apperrors.Wrap(err, apperrors.ErrCodeProcessExited, "bridge process exited"))

	entry := s.logger.WithFields(logrus.Fields{
		"requested":       requested,
		"failed_requests": failed,
	})
	if err != nil && !requested {
		entry.WithError(err).Warn("Bridge process exited unexpectedly")
	} else {
		entry.Info("Bridge process exited")
	}

	close(done)
	s.router.Publish(&types.ConnectionStateEvent{State: string(types.StateDisconnected)})
}

// trackState is the first ordered handler: it mirrors protocol events
// onto the connection state machine.
func (s *Supervisor) trackState(ev types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case *types.QREvent:
		s.state = types.StateAwaitingPairing
	case *types.ConnectedEvent:
		s.state = types.StateConnected
		s.logger.WithFields(logrus.Fields{
			"phone":    e.Phone,
			"name":     e.Name,
			"platform": e.Platform,
		}).Info("Connected")
	case *types.ConnectionStateEvent:
		switch e.State {
		case "connecting":
			s.state = types.StateConnecting
		case "disconnected":
			s.state = types.StateDisconnected
		}
	case *types.LoggedOutEvent:
		s.state = types.StateDisconnected
		s.logger.WithField("reason", e.Reason).Warn("Session logged out")
	case *types.MessageEvent:
		if s.state == types.StateDisconnected {
			// Tolerated, but the provider should not be doing this.
			s.logger.WithField("message_id", e.ID).Warn("Message event while disconnected")
		}
	}
}

func (s *Supervisor) requireConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.state != types.StateConnected {
		return apperrors.NewNotConnectedError(string(s.state))
	}
	return nil
}

// SendText sends a text message and waits for the correlated result.
// A non-empty replyTo quotes that message id.
func (s *Supervisor) SendText(ctx context.Context, to, text, replyTo string) (*types.SendResultEvent, error) {
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	pending, err := s.correlator.Submit(types.Command{
		Type:    types.CmdSend,
		To:      to,
		Text:    text,
		ReplyTo: replyTo,
	}, s.cfg.SendTimeout)
	if err != nil {
		return nil, err
	}
	return waitSendResult(ctx, pending)
}

// SendImage sends a base64-encoded image. Payloads above the upload
// cap are rejected client-side without contacting the subprocess.
func (s *Supervisor) SendImage(ctx context.Context, to, mediaData, mimeType, caption string) (*types.SendResultEvent, error) {
	if size := int64(base64.StdEncoding.DecodedLen(len(mediaData))); size > s.cfg.MaxImageUploadBytes {
		return nil, apperrors.New(apperrors.ErrCodeMediaTooLarge,
			fmt.Sprintf("image payload %d bytes exceeds %d byte limit", size, s.cfg.MaxImageUploadBytes))
	}
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	pending, err := s.correlator.Submit(types.Command{
		Type:      types.CmdSendImage,
		To:        to,
		MediaData: mediaData,
		MimeType:  mimeType,
		Caption:   caption,
	}, s.cfg.SendTimeout)
	if err != nil {
		return nil, err
	}
	return waitSendResult(ctx, pending)
}

func waitSendResult(ctx context.Context, pending *Pending) (*types.SendResultEvent, error) {
	ev, err := pending.Wait(ctx)
	if err != nil {
		return nil, err
	}
	result, ok := ev.(*types.SendResultEvent)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeProtocolDecode, "unexpected response event kind")
	}
	return result, nil
}

// GetProfilePicture resolves the avatar URL for a JID
func (s *Supervisor) GetProfilePicture(ctx context.Context, jid string) (*types.ProfilePictureEvent, error) {
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	pending, err := s.correlator.Submit(types.Command{
		Type: types.CmdGetProfilePicture,
		To:   jid,
	}, s.cfg.ProfilePictureTimeout)
	if err != nil {
		return nil, err
	}
	ev, err := pending.Wait(ctx)
	if err != nil {
		return nil, err
	}
	pic, ok := ev.(*types.ProfilePictureEvent)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeProtocolDecode, "unexpected response event kind")
	}
	return pic, nil
}

// Logout asks the provider to discard the session. Unlike data
// commands it is allowed in any state as long as the process is live.
func (s *Supervisor) Logout() error {
	return s.writeLifecycleCommand(types.CmdLogout)
}

// Disconnect asks the provider to shut down gracefully
func (s *Supervisor) Disconnect() error {
	return s.writeLifecycleCommand(types.CmdDisconnect)
}

func (s *Supervisor) writeLifecycleCommand(kind types.CommandType) error {
	s.mu.Lock()
	writer := s.writer
	s.mu.Unlock()
	if writer == nil {
		return apperrors.NewNotConnectedError(string(types.StateDisconnected))
	}
	return writer.WriteFrame(&types.Command{Type: kind})
}

// Stop requests a graceful shutdown: a disconnect command races the
// grace timer against the process's natural exit, after which the
// process is killed.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	writer := s.writer
	done := s.done
	if cmd != nil {
		s.stopRequested = true
	}
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	if writer != nil {
		if err := writer.WriteFrame(&types.Command{Type: types.CmdDisconnect}); err != nil {
			s.logger.WithError(err).Debug("Disconnect command failed, killing process")
		}
	}

	grace := time.NewTimer(s.cfg.StopGrace)
	defer grace.Stop()

	select {
	case <-done:
		return nil
	case <-grace.C:
		s.logger.Warn("Bridge did not exit within grace period, killing")
	case <-ctx.Done():
	}

	if err := cmd.Process.Kill(); err != nil {
		s.logger.WithError(err).Warn("Failed to kill bridge process")
	}
	<-done
	return nil
}
