package commands

import (
	"fmt"
	"io"
	"strings"

	"autojob/internal/cli/ui"
)

// Models цепочка моделей планировщика.
type Models interface {
	Models() []string
	SetPreferredModel(model string)
}

// LLMHandler обрабатывает команды выбора модели
type LLMHandler struct {
	models Models
	out    io.Writer
}

func NewLLMHandler(models Models, out io.Writer) *LLMHandler {
	return &LLMHandler{models: models, out: out}
}

// List выводит цепочку моделей, первая используется по умолчанию.
func (h *LLMHandler) List() {
	if h.models == nil {
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" LLM клиент не инициализирован"+ui.ColorReset)
		return
	}
	fmt.Fprintln(h.out, ui.ColorYellow+ui.IconRobot+" Модели:"+ui.ColorReset)
	for i, m := range h.models.Models() {
		if i == 0 {
			fmt.Fprintf(h.out, "  "+ui.ColorGreen+"%s %s"+ui.ColorReset+"\n", ui.IconCheckmark, m)
			continue
		}
		fmt.Fprintf(h.out, "    %s\n", m)
	}
}

// Select делает модель первой в цепочке.
func (h *LLMHandler) Select(name string) {
	if h.models == nil {
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" LLM клиент не инициализирован"+ui.ColorReset)
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Укажите модель"+ui.ColorReset)
		return
	}
	h.models.SetPreferredModel(name)
	fmt.Fprintf(h.out, ui.ColorGreen+ui.IconCheckmark+" Модель: %s"+ui.ColorReset+"\n", name)
}
