package report

import (
	"context"
	"fmt"

	"callsight/internal/calls"
)

// Dispatcher renders a completed call's report and mails it to staff.
//
// Callers on the completion path treat Dispatch as fire-and-forget: the
// returned error is for logging and metrics only and must never be
// propagated back to whatever triggered the completion.
type Dispatcher struct {
	Renderer *PDFRenderer
	Mailer   Mailer
}

func NewDispatcher(renderer *PDFRenderer, mailer Mailer) *Dispatcher {
	return &Dispatcher{Renderer: renderer, Mailer: mailer}
}

func (d *Dispatcher) Dispatch(ctx context.Context, c calls.Call) error {
	pdf, err := d.Renderer.Render(c)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("report: dispatch canceled: %w", err)
	}
	return d.Mailer.SendCallReport(c, pdf)
}
