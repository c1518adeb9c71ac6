// Command routerctl is an operator CLI over a running gateway's status and
// admin HTTP surfaces (§6.1), rendering channel health, blacklist entries,
// and daily usage as tables. It never talks to C1/C3 directly; every
// subcommand is a thin HTTP client so routerctl works against any gateway
// instance reachable over the network, not just a colocated one.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the gateway")
	adminToken := flag.String("admin-token", os.Getenv("SMART_ROUTER_ADMIN_TOKEN"), "admin bearer token, for admin subcommands")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	c := &client{baseURL: *baseURL, adminToken: *adminToken, http: &http.Client{Timeout: 10 * time.Second}}

	var err error
	switch args[0] {
	case "channels":
		err = c.channels()
	case "blacklist":
		err = c.blacklist()
	case "usage":
		date := ""
		if len(args) > 1 {
			date = args[1]
		}
		err = c.usage(date)
	case "enable":
		err = c.setEnabled(requireArg(args, 1, "channel id"), true)
	case "disable":
		err = c.setEnabled(requireArg(args, 1, "channel id"), false)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "routerctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `routerctl: operate a smart-router-gateway instance

Usage:
  routerctl [-url=...] [-admin-token=...] <command> [args]

Commands:
  channels            list every configured channel and its health
  blacklist           list live blacklist entries
  usage [YYYYMMDD]     show aggregated usage for a day (default: today)
  enable <channel-id>  re-enable a channel (requires -admin-token)
  disable <channel-id> disable a channel (requires -admin-token)`)
}

func requireArg(args []string, i int, name string) string {
	if i >= len(args) {
		fmt.Fprintf(os.Stderr, "routerctl: missing %s\n", name)
		os.Exit(2)
	}
	return args[i]
}

type client struct {
	baseURL    string
	adminToken string
	http       *http.Client
}

func (c *client) get(path string, admin bool, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s: %s", path, resp.Status, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) post(path string, admin bool) error {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s: %s", path, resp.Status, string(body))
	}
	return nil
}

func (c *client) channels() error {
	var out struct {
		Channels []struct {
			ID             string  `json:"id"`
			Name           string  `json:"name"`
			Provider       string  `json:"provider"`
			ModelName      string  `json:"model_name"`
			Priority       int     `json:"priority"`
			Enabled        bool    `json:"enabled"`
			DisabledReason string  `json:"disabled_reason"`
			HealthScore    float64 `json:"health_score"`
			TotalRequests  int64   `json:"total_requests"`
			TotalFailures  int64   `json:"total_failures"`
		} `json:"channels"`
	}
	if err := c.get("/status/channels", false, &out); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Provider", "Model", "Priority", "Enabled", "Health", "Requests", "Failures"})
	for _, ch := range out.Channels {
		enabled := strconv.FormatBool(ch.Enabled)
		if !ch.Enabled && ch.DisabledReason != "" {
			enabled = "false (" + ch.DisabledReason + ")"
		}
		table.Append([]string{
			ch.ID, ch.Name, ch.Provider, ch.ModelName,
			strconv.Itoa(ch.Priority), enabled,
			strconv.FormatFloat(ch.HealthScore, 'f', 2, 64),
			strconv.FormatInt(ch.TotalRequests, 10),
			strconv.FormatInt(ch.TotalFailures, 10),
		})
	}
	table.Render()
	return nil
}

func (c *client) blacklist() error {
	var out struct {
		Blacklist []struct {
			ChannelID     string    `json:"channel_id"`
			Model         string    `json:"model"`
			ErrorType     string    `json:"error_type"`
			ErrorCode     int       `json:"error_code"`
			BlacklistedAt time.Time `json:"blacklisted_at"`
			ExpiresAt     time.Time `json:"expires_at"`
			FailureCount  int       `json:"failure_count"`
			IsPermanent   bool      `json:"is_permanent"`
		} `json:"blacklist"`
	}
	if err := c.get("/status/blacklist", false, &out); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Channel", "Model", "Error", "Code", "Failures", "Permanent", "Expires"})
	for _, e := range out.Blacklist {
		expires := "never"
		if !e.IsPermanent {
			expires = e.ExpiresAt.Format(time.RFC3339)
		}
		table.Append([]string{
			e.ChannelID, e.Model, e.ErrorType, strconv.Itoa(e.ErrorCode),
			strconv.Itoa(e.FailureCount), strconv.FormatBool(e.IsPermanent), expires,
		})
	}
	table.Render()
	return nil
}

func (c *client) usage(date string) error {
	path := "/status/usage"
	if date != "" {
		path += "?date=" + date
	}
	var out map[string]any
	if err := c.get(path, false, &out); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	for _, k := range []string{"date", "total_requests", "total_cost", "total_tokens"} {
		if v, ok := out[k]; ok {
			table.Append([]string{k, fmt.Sprintf("%v", v)})
		}
	}
	table.Render()
	return nil
}

func (c *client) setEnabled(channelID string, enabled bool) error {
	action := "disable"
	if enabled {
		action = "enable"
	}
	if err := c.post(fmt.Sprintf("/admin/channels/%s/%s", channelID, action), true); err != nil {
		return err
	}
	fmt.Printf("channel %s: enabled=%v\n", channelID, enabled)
	return nil
}
