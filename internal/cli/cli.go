package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"autojob/internal/agent"
	"autojob/internal/cli/commands"
	"autojob/internal/cli/ui"
	"autojob/internal/logger"

	"github.com/chzyer/readline"
)

// Deps зависимости консоли. Любая может быть nil, тогда команда сообщает об этом.
type Deps struct {
	Store      commands.JobStore
	Runner     commands.Runner
	Control    commands.Control
	Models     commands.Models
	Opener     commands.Opener
	Persistent agent.Launcher
}

type CLI struct {
	log            *logger.Zap
	out            io.Writer
	in             *bufio.Reader
	rl             *readline.Instance
	models         commands.Models
	jobHandler     *commands.JobHandler
	showHandler    *commands.ShowHandler
	logsHandler    *commands.LogsHandler
	controlHandler *commands.ControlHandler
	browserHandler *commands.BrowserHandler
	llmHandler     *commands.LLMHandler
}

// New собирает консоль. historyFile пустой значит без readline.
func New(d Deps, historyFile string, log *logger.Zap) *CLI {
	if log == nil {
		log = logger.Nop()
	}
	cli := &CLI{log: log, out: os.Stdout, in: bufio.NewReader(os.Stdin), models: d.Models}

	if historyFile != "" {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "> ",
			HistoryFile:     historyFile,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			log.Warn("Не удалось инициализировать readline, будет использован fallback режим")
		} else {
			cli.rl = rl
			cli.out = rl.Stdout()
		}
	}

	cli.wire(d)
	return cli
}

func (c *CLI) wire(d Deps) {
	c.jobHandler = commands.NewJobHandler(d.Store, d.Runner, c.out, c.log.Logger)
	c.showHandler = commands.NewShowHandler(d.Store, c.out, c.log.Logger)
	c.logsHandler = commands.NewLogsHandler(d.Store, c.out, c.log.Logger)
	c.controlHandler = commands.NewControlHandler(d.Control, c.out)
	c.browserHandler = commands.NewBrowserHandler(d.Opener, d.Persistent, c.readLine, c.out, c.log.Logger)
	c.llmHandler = commands.NewLLMHandler(d.Models, c.out)
}

func (c *CLI) readLine() (string, error) {
	if c.rl != nil {
		return c.rl.Readline()
	}
	fmt.Fprint(c.out, ui.ColorCyan+"> "+ui.ColorReset)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *CLI) closeReadline() {
	if c.rl != nil {
		c.rl.Close()
	}
}

// Run читает команды до exit, EOF или отмены ctx.
func (c *CLI) Run(ctx context.Context) {
	var models []string
	if c.models != nil {
		models = c.models.Models()
	}
	ui.PrintWelcome(c.out, models)
	defer c.closeReadline()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out, "\n"+ui.ColorCyan+ui.IconWave+" Получен сигнал завершения..."+ui.ColorReset)
			return
		default:
		}

		line, err := c.readLine()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return
			}
			continue
		} else if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !c.handleCommand(ctx, line) {
			return
		}
	}
}

// handleCommand выполняет одну команду. false означает выход.
func (c *CLI) handleCommand(ctx context.Context, line string) bool {
	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "exit", "quit":
		fmt.Fprintln(c.out, ui.ColorCyan+ui.IconWave+" До свидания!"+ui.ColorReset)
		return false
	case "clear":
		ui.ClearScreen(c.out)
	case "add":
		c.jobHandler.Add(ctx, args)
	case "jobs", "list":
		c.jobHandler.List(ctx, args)
	case "run":
		c.jobHandler.Run(ctx, args)
	case "purge":
		c.jobHandler.Purge(ctx, args)
	case "stats":
		c.jobHandler.Stats(ctx)
	case "show", "diag":
		c.showHandler.Show(ctx, args)
	case "logs":
		c.logsHandler.Show(ctx, args)
	case "start":
		c.controlHandler.Start(ctx)
	case "pause":
		c.controlHandler.Pause()
	case "status":
		c.controlHandler.Status()
	case "models":
		c.llmHandler.List()
	case "model":
		c.llmHandler.Select(args)
	case "open-persistent":
		c.browserHandler.OpenPersistent(ctx)
	case "open":
		c.browserHandler.Open(ctx, args)
	default:
		ui.PrintHelp(c.out)
	}
	return true
}
