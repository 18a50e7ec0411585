// Command agentchat runs configured agents from the command line or serves
// them to other agentchat processes.
//
// Usage:
//
//	agentchat chat  --config agentchat.yaml --from user --to assistant "Plot NVDA"
//	agentchat group --config agentchat.yaml --from user "Plan the release"
//	agentchat serve --config agentchat.yaml
//	agentchat agents --addr http://localhost:8080
//	agentchat health --addr http://localhost:8080
//	agentchat version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hupe1980/agentchat"
	"github.com/hupe1980/agentchat/agent"
	"github.com/hupe1980/agentchat/config"
	"github.com/hupe1980/agentchat/remote"
)

// Set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error

	switch os.Args[1] {
	case "chat":
		err = runChat(os.Args[2:])
	case "group":
		err = runGroup(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "agents":
		err = runAgents(os.Args[2:])
	case "health":
		err = runHealth(os.Args[2:])
	case "version":
		fmt.Printf("agentchat %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type commonFlags struct {
	configPath string
	dotEnv     string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to config file (.yaml, .json or .toml)")
	fs.StringVar(&c.dotEnv, "env", ".env", "Path to a .env file")
}

func (c *commonFlags) load() (*agentchat.AgentChat, error) {
	loader := config.NewLoader().WithDotEnv(c.dotEnv)
	if c.configPath != "" {
		loader = loader.WithConfigPath(c.configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	return agentchat.New(cfg)
}

func runChat(args []string) error {
	var common commonFlags

	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	common.register(fs)
	from := fs.String("from", "user", "Agent starting the chat")
	to := fs.String("to", "assistant", "Recipient agent, group chat manager or peer")
	maxTurns := fs.Int("max-turns", 0, "Maximum number of turns (0 = until termination)")
	silent := fs.Bool("silent", false, "Do not print the transcript")
	_ = fs.Parse(args)

	msg := strings.Join(fs.Args(), " ")
	if msg == "" {
		return errors.New("chat: message is required")
	}

	c, err := common.load()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := c.InitiateChat(ctx, *from, *to, msg, agent.WithMaxTurns(*maxTurns), agent.WithSilent(*silent))
	if err != nil {
		return err
	}

	fmt.Printf("\nSummary: %s\n", res.Summary)
	fmt.Printf("Turns: %d, tokens: %d, cost: $%.4f\n", res.Turns, res.Usage.TotalTokens, res.Cost)

	return nil
}

func runGroup(args []string) error {
	var common commonFlags

	fs := flag.NewFlagSet("group", flag.ExitOnError)
	common.register(fs)
	from := fs.String("from", "user", "Agent opening the group chat")
	_ = fs.Parse(args)

	msg := strings.Join(fs.Args(), " ")
	if msg == "" {
		return errors.New("group: message is required")
	}

	c, err := common.load()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transcript, err := c.RunGroupChat(ctx, *from, msg)
	if err != nil {
		return err
	}

	fmt.Printf("\nSpeakers: %s\n", strings.Join(transcript.Speakers(), " -> "))

	return nil
}

func runServe(args []string) error {
	var common commonFlags

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	common.register(fs)
	_ = fs.Parse(args)

	c, err := common.load()
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := c.Config()
	logger := c.Logger()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return err
	}

	if cfg.Server.BaseURL == "" {
		c.Server().SetBaseURL("http://" + ln.Addr().String())
	}

	servers := []*http.Server{{Handler: c.Handler(), ReadHeaderTimeout: 10 * time.Second}}
	listeners := []net.Listener{ln}

	if c.Metrics() != nil && cfg.Metrics.Addr != "" && cfg.Metrics.Addr != cfg.Server.Addr {
		mln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			_ = ln.Close()
			return err
		}

		servers = append(servers, &http.Server{Handler: c.Metrics().Handler(), ReadHeaderTimeout: 10 * time.Second})
		listeners = append(listeners, mln)
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		logger.Info("agentchat.serve.listening", "addr", listeners[i].Addr().String())

		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv, listeners[i])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, srv := range servers {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("agentchat.serve.shutdown", "error", serr.Error())
		}
	}

	logger.Info("agentchat.serve.stopped")

	return err
}

func runAgents(args []string) error {
	fs := flag.NewFlagSet("agents", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cards, err := remote.ListAgents(ctx, &http.Client{Timeout: 10 * time.Second}, *addr)
	if err != nil {
		return err
	}

	for _, card := range cards {
		fmt.Printf("%-20s %s\n", card.Name, card.Description)
	}

	return nil
}

func runHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Println("OK")

	return nil
}

func printUsage() {
	fmt.Println(`agentchat - conversational multi-agent runtime

Usage:
  agentchat <command> [flags] [message]

Commands:
  chat      Start a chat between two agents
  group     Run the configured group chat
  serve     Serve the configured agents over HTTP
  agents    List the agents hosted by a server
  health    Check a server's health
  version   Show version information`)
}
