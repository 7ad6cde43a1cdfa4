package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexcodex/dwfcopilot/framework"
	runtimesvc "github.com/lexcodex/dwfcopilot/internal/dwfchat/runtime"
)

func (a *app) askCmd() *cobra.Command {
	var (
		yes          bool
		showThinking bool
	)
	cmd := &cobra.Command{
		Use:   "ask [message...]",
		Short: "Send one message and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return a.runWithRuntime(cmd, func(ctx context.Context, rt *runtimesvc.Runtime) error {
				out := &textRenderer{w: cmd.OutOrStdout(), showThinking: showThinking}
				sess := rt.NewSession()
				defer rt.Sessions.Delete(sess.ID())
				if _, err := rt.Copilot.SendMessage(ctx, sess, message, out); err != nil {
					return err
				}
				req := sess.Pending()
				if req == nil {
					return nil
				}
				if !yes {
					fmt.Fprintf(out.w, "Not confirmed; rerun with --yes to %s.\n", strings.ToLower(req.ConfirmText))
					return nil
				}
				_, err := rt.Copilot.Confirm(ctx, sess, out)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm a requested action without prompting")
	cmd.Flags().BoolVar(&showThinking, "thinking", false, "Print the reasoning span")
	return cmd
}

// textRenderer prints a reply as plain text.
type textRenderer struct {
	w            io.Writer
	showThinking bool
	midLine      bool
}

func (r *textRenderer) OnStart(sessionID string) {}

func (r *textRenderer) OnEvent(ev framework.StreamEvent) {
	switch ev.Type {
	case framework.StreamContent:
		r.write(ev.Text)
	case framework.StreamThinking:
		if r.showThinking {
			r.write(ev.Text)
		}
	case framework.StreamThinkingStart:
		if r.showThinking {
			r.write("[reasoning] ")
		}
	case framework.StreamThinkingEnd:
		if r.showThinking {
			r.newline()
		}
	}
}

func (r *textRenderer) OnError(err error) {
	r.newline()
	fmt.Fprintf(r.w, "error: %v\n", err)
}

func (r *textRenderer) OnEnd(full string) { r.newline() }

func (r *textRenderer) OnPayload(ext *framework.Extraction) {
	action := ext.Payload.Action
	if action == "" {
		action = ext.Payload.HitlAction
	}
	fmt.Fprintf(r.w, "[action] %s\n", action)
	for _, line := range framework.FormatToolArgs(ext.Payload.Arguments()) {
		fmt.Fprintf(r.w, "  %s\n", line)
	}
}

func (r *textRenderer) OnToolResult(action, result string) {
	fmt.Fprintf(r.w, "[tool] %s: %s\n", action, result)
}

func (r *textRenderer) OnHitlRequest(req *framework.PendingHitlRequest) {
	fmt.Fprintf(r.w, "[confirm] %s (%s/%s)\n", req.Message, req.ConfirmText, req.CancelText)
}

func (r *textRenderer) OnNotice(text string) {
	fmt.Fprintf(r.w, "[notice] %s\n", text)
}

func (r *textRenderer) write(text string) {
	if text == "" {
		return
	}
	io.WriteString(r.w, text)
	r.midLine = !strings.HasSuffix(text, "\n")
}

func (r *textRenderer) newline() {
	if r.midLine {
		io.WriteString(r.w, "\n")
		r.midLine = false
	}
}
