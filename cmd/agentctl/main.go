// Command agentctl is a CLI client for the agentd API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Control client for the agentd run service",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "agentd base URL")

	root.AddCommand(enqueueCmd())
	root.AddCommand(getCmd())
	root.AddCommand(runsCmd())
	root.AddCommand(activeCmd())
	root.AddCommand(signalCmd("pause", "Request that a run pause at the next turn boundary"))
	root.AddCommand(signalCmd("resume", "Resume a paused run"))
	root.AddCommand(signalCmd("cancel", "Request cancellation of a run"))
	root.AddCommand(watchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultServer() string {
	if v := os.Getenv("AGENTD_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// --- enqueue ---

func enqueueCmd() *cobra.Command {
	var inputs []string
	cmd := &cobra.Command{
		Use:   "enqueue <agent_id>",
		Short: "Enqueue a new run for an agent",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			inputValues := make(map[string]string)
			for _, kv := range inputs {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) != 2 {
					fmt.Fprintf(os.Stderr, "Error: invalid input %q, expected name=value\n", kv)
					os.Exit(1)
				}
				inputValues[parts[0]] = parts[1]
			}

			body, _ := json.Marshal(map[string]interface{}{"input_values": inputValues})
			resp := doRequest(http.MethodPost, "/v1/agents/"+args[0]+"/runs", body)
			printJSON(resp)
		},
	}
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "input value as name=value (repeatable)")
	return cmd
}

// --- get ---

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <run_id>",
		Short: "Show a run with its transcript and log",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(doRequest(http.MethodGet, "/v1/runs/"+args[0], nil))
		},
	}
}

// --- runs ---

func runsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "runs <agent_id>",
		Short: "List runs for an agent, most recent first",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resp := doRequest(http.MethodGet, "/v1/agents/"+args[0]+"/runs", nil)
			if jsonOutput {
				printJSON(resp)
				return
			}

			var parsed struct {
				Runs []struct {
					RunID     string    `json:"run_id"`
					Status    string    `json:"status"`
					TurnCount int       `json:"turn_count"`
					CreatedAt time.Time `json:"created_at"`
				} `json:"runs"`
			}
			if err := json.Unmarshal(resp, &parsed); err != nil {
				fmt.Fprintf(os.Stderr, "Error: unexpected response: %s\n", resp)
				os.Exit(1)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATUS\tTURNS\tCREATED")
			for _, r := range parsed.Runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.RunID, r.Status, r.TurnCount, r.CreatedAt.Format(time.RFC3339))
			}
			w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// --- active ---

func activeCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "active",
		Short: "List runs currently held by workers",
		Run: func(cmd *cobra.Command, args []string) {
			resp := doRequest(http.MethodGet, "/v1/runs/active", nil)
			if jsonOutput {
				printJSON(resp)
				return
			}

			var parsed struct {
				Active []struct {
					RunID     string    `json:"run_id"`
					AgentID   string    `json:"agent_id"`
					TurnCount int       `json:"turn_count"`
					StartedAt time.Time `json:"started_at"`
				} `json:"active"`
				QueueDepth int `json:"queue_depth"`
			}
			if err := json.Unmarshal(resp, &parsed); err != nil {
				fmt.Fprintf(os.Stderr, "Error: unexpected response: %s\n", resp)
				os.Exit(1)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tAGENT\tTURNS\tSTARTED")
			for _, r := range parsed.Active {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.RunID, r.AgentID, r.TurnCount, r.StartedAt.Format(time.RFC3339))
			}
			w.Flush()
			fmt.Printf("queued: %d\n", parsed.QueueDepth)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// --- pause / resume / cancel ---

func signalCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <run_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(doRequest(http.MethodPost, "/v1/runs/"+args[0]+"/"+verb, nil))
		},
	}
}

// --- watch ---

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <run_id>",
		Short: "Stream progress events for a run over WebSocket",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			watchRun(args[0])
		},
	}
}

func watchRun(runID string) {
	base, err := url.Parse(serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid server URL: %v\n", err)
		os.Exit(1)
	}
	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	default:
		base.Scheme = "ws"
	}
	base.Path = "/v1/runs/" + runID + "/watch"

	conn, _, err := websocket.DefaultDialer.Dial(base.String(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fmt.Println(string(data))
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

// --- helpers ---

func doRequest(method, path string, body []byte) []byte {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(serverURL, "/")+path, reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read response: %v\n", err)
		os.Exit(1)
	}

	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "Error: server returned %d: %s\n", resp.StatusCode, strings.TrimSpace(string(data)))
		os.Exit(1)
	}
	return data
}

func printJSON(data []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(buf.String())
}
