// Package executor выполняет одно действие агента над страницей и проверяет его эффект.
package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"autojob/internal/action"
	"autojob/internal/logger"
	"autojob/internal/page"
	"autojob/internal/snapshot"

	"go.uber.org/zap"
)

var (
	ErrNotVerified      = errors.New("эффект действия не подтверждён")
	ErrUnknownRef       = errors.New("ссылка на элемент отсутствует в снимке")
	ErrUploadNotAllowed = errors.New("на странице нет признаков загрузки файла")
	ErrNoUploadFile     = errors.New("нет файла из белого списка")
	ErrTerminal         = errors.New("завершающее действие не исполняется на странице")
)

const (
	scrollStep     = 500
	maxWaitSeconds = 10
	uploadAttempts = 3

	// locateRetries сколько раз докручивать страницу к элементу, которого ещё не видно.
	locateRetries = 2
	locateScroll  = 300
)

// Files белый список загрузок.
type Files interface {
	Resolve(requested, preferred string) []string
	Allowed(path string) bool
}

type Config struct {
	// RefreshSettle пауза после перезагрузки.
	RefreshSettle time.Duration
	// WaitUnit длительность одной единицы действия wait.
	WaitUnit time.Duration
}

// Request действие вместе с наблюдением, в котором его выбрали.
type Request struct {
	Action          action.Action
	Snapshot        snapshot.Snapshot
	UploadAllowed   bool
	PreferredResume string
}

// Result итог исполнения. Verified false при успехе означает, что проверка неприменима.
type Result struct {
	Target    page.Target
	Element   page.Element
	Verified  bool
	Retried   bool
	Answered  bool
	Uploaded  string
	Refreshed bool
	Detail    string
}

type Executor struct {
	surface page.Surface
	files   Files
	cfg     Config
	log     *logger.Zap
}

func New(surface page.Surface, files Files, cfg Config, log *logger.Zap) *Executor {
	if cfg.RefreshSettle == 0 {
		cfg.RefreshSettle = 1200 * time.Millisecond
	}
	if cfg.WaitUnit == 0 {
		cfg.WaitUnit = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Executor{surface: surface, files: files, cfg: cfg, log: log}
}

// Execute исполняет действие. Ошибка означает, что действие не выполнено или его эффект не подтверждён.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	a := req.Action
	switch a.Kind {
	case action.Click:
		return e.click(ctx, a, req.Snapshot)
	case action.Fill, action.Type, action.Select:
		return e.input(ctx, a, req.Snapshot)
	case action.Upload:
		return e.upload(ctx, req)
	case action.Scroll:
		dy := scrollStep
		if strings.Contains(strings.ToLower(a.Value), "up") {
			dy = -scrollStep
		}
		if err := e.surface.Scroll(ctx, dy); err != nil {
			return Result{}, fmt.Errorf("прокрутка: %w", err)
		}
		return Result{Detail: fmt.Sprintf("scroll %d", dy)}, nil
	case action.Refresh:
		return e.refresh(ctx)
	case action.Wait:
		n := waitUnits(a.Value)
		if err := sleep(ctx, time.Duration(n)*e.cfg.WaitUnit); err != nil {
			return Result{}, err
		}
		return Result{Detail: fmt.Sprintf("wait %d", n)}, nil
	case action.Done, action.Stuck:
		return Result{}, fmt.Errorf("%s: %w", a.Kind, ErrTerminal)
	default:
		return Result{}, fmt.Errorf("неизвестное действие %d", a.Kind)
	}
}

// Resolve переводит ссылку или текстовый селектор в цель поиска.
func Resolve(a action.Action, snap snapshot.Snapshot) (page.Target, page.Element, error) {
	if a.Ref != "" {
		if el, ok := snap.Lookup(a.Ref); ok {
			return page.Target{
				Role:        el.Role,
				Name:        el.Name,
				Nth:         el.Nth,
				FileInput:   el.Role == "file_input",
				ElementType: a.ElementType,
			}, el, nil
		}
		if a.Selector == "" {
			return page.Target{}, page.Element{}, fmt.Errorf("%s: %w", a.Ref, ErrUnknownRef)
		}
	}
	el := page.Element{Role: roleFor(a.ElementType), Name: a.Selector}
	return page.Target{Selector: a.Selector, ElementType: a.ElementType}, el, nil
}

func roleFor(elementType string) string {
	switch elementType {
	case "button", "link", "checkbox", "radio", "option", "combobox", "textbox":
		return elementType
	case "input":
		return "textbox"
	}
	return ""
}

func (e *Executor) click(ctx context.Context, a action.Action, snap snapshot.Snapshot) (Result, error) {
	t, el, err := Resolve(a, snap)
	if err != nil {
		return Result{}, err
	}
	res := Result{Target: t, Element: el}
	label := a.Selector
	if label == "" {
		label = el.Name
	}

	if a.TargetQuestion != "" && action.YesNo(label) != "" {
		clicked, err := e.surface.ClickAnswer(ctx, a.TargetQuestion, label)
		if err != nil {
			e.log.Debug("клик по ответу в блоке вопроса не удался", zap.String("question", a.TargetQuestion), zap.Error(err))
		}
		if clicked {
			res.Answered = true
			ok, _ := e.surface.AnswerSelected(ctx, a.TargetQuestion, label)
			if ok {
				res.Verified = true
				return res, nil
			}
			return res, fmt.Errorf("ответ %q на %q: %w", label, a.TargetQuestion, ErrNotVerified)
		}
	}

	if err := e.retryLocate(ctx, func() error { return e.surface.Click(ctx, t) }); err != nil {
		return res, fmt.Errorf("клик %s: %w", a.Target(), err)
	}

	toggle := isToggle(el, a)
	verify := func() bool { return e.verifyClick(ctx, t, toggle, label) }
	if a.TargetQuestion != "" && action.YesNo(label) != "" {
		// одинаковых кнопок Yes/No на странице много: подтверждает только состояние блока вопроса
		verify = func() bool {
			ok, err := e.surface.AnswerSelected(ctx, a.TargetQuestion, label)
			return err == nil && ok
		}
	}
	if verify() {
		res.Verified = toggle || action.YesNo(label) != ""
		return res, nil
	}

	res.Retried = true
	if toggle {
		if err := e.surface.Check(ctx, t); err != nil {
			if err := e.surface.Click(ctx, t); err != nil {
				return res, fmt.Errorf("повторный клик %s: %w", a.Target(), err)
			}
		}
	} else {
		_ = e.surface.ScrollIntoView(ctx, t)
		if err := e.surface.Click(ctx, t); err != nil {
			return res, fmt.Errorf("повторный клик %s: %w", a.Target(), err)
		}
	}
	if verify() {
		res.Verified = true
		return res, nil
	}
	return res, fmt.Errorf("клик %s: %w", a.Target(), ErrNotVerified)
}

// retryLocate повторяет операцию, пока элемент не найден, прокручивая страницу между попытками.
func (e *Executor) retryLocate(ctx context.Context, op func() error) error {
	err := op()
	for attempt := 1; attempt <= locateRetries && errors.Is(err, page.ErrNotFound); attempt++ {
		if serr := e.surface.Scroll(ctx, locateScroll); serr != nil {
			return err
		}
		e.log.Debug("элемент не найден, прокрутка и повтор", zap.Int("attempt", attempt))
		err = op()
	}
	return err
}

func isToggle(el page.Element, a action.Action) bool {
	return el.Role == "checkbox" || el.Role == "radio" || a.ElementType == "checkbox" || a.ElementType == "radio"
}

func (e *Executor) verifyClick(ctx context.Context, t page.Target, toggle bool, label string) bool {
	if toggle {
		checked, err := e.surface.IsChecked(ctx, t)
		return err == nil && checked
	}
	if action.YesNo(label) == "" {
		return true
	}
	for _, attr := range []string{"aria-pressed", "aria-checked"} {
		v, err := e.surface.Attribute(ctx, t, attr)
		if err == nil && (strings.EqualFold(v, "true") || v == "1") {
			return true
		}
	}
	class, err := e.surface.Attribute(ctx, t, "class")
	if err != nil {
		return false
	}
	class = strings.ToLower(class)
	return strings.Contains(class, "selected") || strings.Contains(class, "active") || strings.Contains(class, "checked")
}

func (e *Executor) input(ctx context.Context, a action.Action, snap snapshot.Snapshot) (Result, error) {
	t, el, err := Resolve(a, snap)
	if err != nil {
		return Result{}, err
	}
	res := Result{Target: t, Element: el}

	if err := e.apply(ctx, a.Kind, t, a.Value); err != nil {
		return res, fmt.Errorf("%s %s: %w", a.Kind, a.Target(), err)
	}
	if e.verifyValue(ctx, a, t, el) {
		res.Verified = true
		return res, nil
	}

	res.Retried = true
	retry := a.Kind
	if retry == action.Type {
		retry = action.Fill
	}
	if err := e.apply(ctx, retry, t, a.Value); err != nil {
		return res, fmt.Errorf("повтор %s %s: %w", a.Kind, a.Target(), err)
	}
	if e.verifyValue(ctx, a, t, el) {
		res.Verified = true
		return res, nil
	}
	return res, fmt.Errorf("%s %s: %w", a.Kind, a.Target(), ErrNotVerified)
}

func (e *Executor) apply(ctx context.Context, kind action.Kind, t page.Target, value string) error {
	return e.retryLocate(ctx, func() error {
		switch kind {
		case action.Fill:
			return e.surface.Fill(ctx, t, value)
		case action.Type:
			return e.surface.Type(ctx, t, value)
		case action.Select:
			return e.surface.Select(ctx, t, value)
		}
		return fmt.Errorf("%s не вводит значение", kind)
	})
}

// verifyValue значение поля содержит введённое. Открытый список автодополнения после type тоже успех:
// выбор варианта остаётся следующим шагом.
func (e *Executor) verifyValue(ctx context.Context, a action.Action, t page.Target, el page.Element) bool {
	want := strings.TrimSpace(a.Value)
	if want == "" {
		return true
	}
	got, err := e.surface.InputValue(ctx, t)
	if err == nil && strings.Contains(strings.ToLower(got), strings.ToLower(want)) {
		return true
	}
	if a.Kind == action.Type && (el.Role == "combobox" || el.Role == "textbox") {
		expanded, err := e.surface.Attribute(ctx, t, "aria-expanded")
		return err == nil && strings.EqualFold(expanded, "true")
	}
	return false
}

func (e *Executor) upload(ctx context.Context, req Request) (Result, error) {
	a := req.Action
	if !req.UploadAllowed {
		return Result{}, ErrUploadNotAllowed
	}
	if e.files == nil {
		return Result{}, ErrNoUploadFile
	}

	t := page.Target{FileInput: true}
	var el page.Element
	if a.Ref != "" {
		if found, ok := req.Snapshot.Lookup(a.Ref); ok {
			el = found
			if found.Role == "file_input" {
				t.Nth = found.Nth
			}
		}
	}
	res := Result{Target: t, Element: el}

	var paths []string
	for _, p := range e.files.Resolve(a.Value, req.PreferredResume) {
		if e.files.Allowed(p) {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return res, ErrNoUploadFile
	}

	path := paths[0]
	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		if err := e.surface.SetFiles(ctx, t, path); err != nil {
			lastErr = err
			e.log.Warn("загрузка файла не удалась", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if e.uploadVisible(ctx, t, path) {
			res.Verified = true
			res.Uploaded = path
			return res, nil
		}
		lastErr = ErrNotVerified
	}
	return res, fmt.Errorf("загрузка %s: %w", filepath.Base(path), lastErr)
}

func (e *Executor) uploadVisible(ctx context.Context, t page.Target, path string) bool {
	name := filepath.Base(path)
	if got, err := e.surface.UploadedFile(ctx, t); err == nil && got == name {
		return true
	}
	text, err := e.surface.VisibleText(ctx)
	return err == nil && strings.Contains(text, name)
}

func (e *Executor) refresh(ctx context.Context) (Result, error) {
	if err := e.surface.Reload(ctx); err != nil {
		return Result{}, fmt.Errorf("перезагрузка: %w", err)
	}
	if err := sleep(ctx, e.cfg.RefreshSettle); err != nil {
		return Result{}, err
	}
	return Result{Refreshed: true, Detail: "refresh"}, nil
}

func waitUnits(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 1
	}
	return min(n, maxWaitSeconds)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
