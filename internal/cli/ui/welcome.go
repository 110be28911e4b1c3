package ui

import (
	"fmt"
	"io"
)

// PrintWelcome выводит приветствие
func PrintWelcome(w io.Writer, models []string) {
	fmt.Fprintln(w, ColorBold+IconRobot+" autojob"+ColorReset)
	fmt.Fprintln(w, ColorGray+"Агент заполняет формы откликов на вакансии"+ColorReset)
	if len(models) > 0 {
		fmt.Fprintln(w, ColorGray+"Модель планировщика: "+models[0]+ColorReset)
	}
	fmt.Fprintln(w)
	PrintHelp(w)
	fmt.Fprintln(w, ColorCyan+IconBulb+" Совет:"+ColorReset+" Используйте "+ColorYellow+"open-persistent"+ColorReset+" для входа на сайты вакансий, затем "+ColorYellow+"start"+ColorReset+" для разбора очереди")
	fmt.Fprintln(w)
	fmt.Fprintln(w, ColorGray+"⬆️ ⬇️"+ColorReset+" Используйте стрелки для навигации по истории команд")
	fmt.Fprintln(w)
}

// PrintHelp выводит список доступных команд
func PrintHelp(w io.Writer) {
	fmt.Fprintln(w, ColorYellow+IconList+" Доступные команды:"+ColorReset)
	fmt.Fprintln(w, "  "+ColorGreen+"add"+ColorReset+" <url> [компания] - Добавить вакансию в очередь")
	fmt.Fprintln(w, "  "+ColorGreen+"jobs"+ColorReset+" [статус]        - Список вакансий")
	fmt.Fprintln(w, "  "+ColorGreen+"run"+ColorReset+" <id>             - Подать отклик сейчас")
	fmt.Fprintln(w, "  "+ColorGreen+"show"+ColorReset+" <id>            - Диагностика вакансии")
	fmt.Fprintln(w, "  "+ColorGreen+"logs"+ColorReset+" <id>            - Журнал вакансии")
	fmt.Fprintln(w, "  "+ColorGreen+"stats"+ColorReset+"                - Сводка неудач")
	fmt.Fprintln(w, "  "+ColorGreen+"purge"+ColorReset+" [статус]       - Удалить вакансии")
	fmt.Fprintln(w, "  "+ColorGreen+"start"+ColorReset+" / "+ColorGreen+"pause"+ColorReset+"        - Запустить или остановить очередь")
	fmt.Fprintln(w, "  "+ColorGreen+"status"+ColorReset+"               - Состояние очереди")
	fmt.Fprintln(w, "  "+ColorGreen+"models"+ColorReset+"               - Цепочка моделей LLM")
	fmt.Fprintln(w, "  "+ColorGreen+"model"+ColorReset+" <имя>          - Выбрать модель")
	fmt.Fprintln(w, "  "+ColorGreen+"open"+ColorReset+" <url>           - Довести до формы заявки и оставить браузер")
	fmt.Fprintln(w, "  "+ColorGreen+"open-persistent"+ColorReset+"      - Открыть браузер для ручного входа")
	fmt.Fprintln(w, "  "+ColorGreen+"clear"+ColorReset+"                - Очистить экран")
	fmt.Fprintln(w, "  "+ColorGreen+"exit"+ColorReset+"                 - Выход")
	fmt.Fprintln(w)
}
