package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
	"github.com/codyde/sentryvibe-sub001/internal/logging"
	"github.com/codyde/sentryvibe-sub001/internal/services"
)

// ControlChannel is the pub/sub channel the orchestrator drives the
// synchronizer through.
const ControlChannel = "sentryvibe:control"

// controlMessage is one orchestrator instruction
type controlMessage struct {
	Action    string `json:"action"`
	AgentID   string `json:"agentId"`
	BuildID   string `json:"buildId"`
	CommandID string `json:"commandId"`
	ModelID   string `json:"modelId"`
	Operation string `json:"operation"`
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId"`
}

// ServeCmd runs the long-lived synchronizer process
type ServeCmd struct{}

// Run executes the serve command
func (s *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cli.Container.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	cli.Container.Reaper.Start()
	defer cli.Container.Reaper.Stop()

	sub := cli.Container.Redis.Subscribe(ctx, ControlChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to control channel: %w", err)
	}

	logging.Logger.Info("synchronizer started", "control_channel", ControlChannel)
	fmt.Printf("sentryvibe-sync listening on %s\n", ControlChannel)

	go func() {
		for msg := range sub.Channel() {
			s.handleControl(ctx, cli.Container.Manager, []byte(msg.Payload))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logging.Logger.Info("shutting down", "signal", sig.String())
	return nil
}

// handleControl dispatches one orchestrator instruction. Bad messages
// are logged and dropped; the loop never dies on input.
func (s *ServeCmd) handleControl(ctx context.Context, manager *services.SessionManager, payload []byte) {
	var msg controlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logging.Logger.Warn("dropped malformed control message", "error", err)
		return
	}

	var err error
	switch msg.Action {
	case "register":
		_, err = manager.Register(ctx, services.RegisterParams{
			AgentID:   msg.AgentID,
			BuildID:   msg.BuildID,
			CommandID: msg.CommandID,
			ModelID:   msg.ModelID,
			Operation: domain.OperationType(msg.Operation),
			ProjectID: msg.ProjectID,
			SessionID: msg.SessionID,
		})
	case "build-completed":
		err = manager.NotifyCompleted(ctx, msg.CommandID)
	case "build-failed":
		err = manager.NotifyFailed(ctx, msg.CommandID)
	default:
		logging.Logger.Warn("dropped control message with unknown action", "action", msg.Action)
		return
	}

	if err != nil {
		// A terminal signal for a build this process never saw is
		// expected after restarts; the reaper settles those.
		if errors.Is(err, domain.ErrBuildNotRegistered) {
			logging.Logger.Debug("terminal signal for unregistered build", "command_id", msg.CommandID)
			return
		}
		logging.Logger.Error("control action failed",
			"action", msg.Action,
			"command_id", msg.CommandID,
			"error", err,
		)
	}
}
