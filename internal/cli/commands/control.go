package commands

import (
	"context"
	"fmt"
	"io"

	"autojob/internal/cli/ui"
)

// Control управление воркером очереди.
type Control interface {
	Start(ctx context.Context) bool
	Stop()
	IsRunning() bool
	CurrentJob() uint
}

// ControlHandler запуск и пауза очереди
type ControlHandler struct {
	control Control
	out     io.Writer
}

func NewControlHandler(control Control, out io.Writer) *ControlHandler {
	return &ControlHandler{control: control, out: out}
}

// Start запускает воркер на ctx консоли.
func (h *ControlHandler) Start(ctx context.Context) {
	if h.control == nil {
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Планировщик не инициализирован"+ui.ColorReset)
		return
	}
	if !h.control.Start(ctx) {
		fmt.Fprintln(h.out, ui.ColorYellow+ui.IconPlay+" Очередь уже запущена"+ui.ColorReset)
		return
	}
	fmt.Fprintln(h.out, ui.ColorGreen+ui.IconPlay+" Очередь запущена"+ui.ColorReset)
}

// Pause останавливает выборку новых вакансий, текущая дорабатывается.
func (h *ControlHandler) Pause() {
	if h.control == nil {
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Планировщик не инициализирован"+ui.ColorReset)
		return
	}
	h.control.Stop()
	if id := h.control.CurrentJob(); id != 0 {
		fmt.Fprintf(h.out, ui.ColorYellow+ui.IconPause+" Пауза после вакансии #%d"+ui.ColorReset+"\n", id)
		return
	}
	fmt.Fprintln(h.out, ui.ColorGray+ui.IconPause+" Очередь на паузе"+ui.ColorReset)
}

func (h *ControlHandler) Status() {
	if h.control == nil || !h.control.IsRunning() {
		fmt.Fprintln(h.out, ui.ColorGray+ui.IconPause+" Очередь остановлена"+ui.ColorReset)
		return
	}
	if id := h.control.CurrentJob(); id != 0 {
		fmt.Fprintf(h.out, ui.ColorCyan+ui.IconPlay+" Работает, вакансия #%d"+ui.ColorReset+"\n", id)
		return
	}
	fmt.Fprintln(h.out, ui.ColorCyan+ui.IconClock+" Работает, очередь пуста"+ui.ColorReset)
}
