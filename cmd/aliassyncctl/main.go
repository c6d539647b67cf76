package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"codeberg.org/aliassync/aliassync/pkg/api"
	"codeberg.org/aliassync/aliassync/pkg/audit"
	"codeberg.org/aliassync/aliassync/pkg/config"
	"codeberg.org/aliassync/aliassync/pkg/hook"
	"codeberg.org/aliassync/aliassync/pkg/identity"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	serverAddr string
	output     string
	apiPrefix  = "/apis/aliassync/v1"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "aliassyncctl",
		Short: "aliassyncctl inspects and drives the aliassync login hook",
		Long:  `A command line tool to preview directory identities, trigger syncs and export the audit trail.`,
	}

	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "http://localhost:8080", "The address and port of the aliassync API server")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table or yaml")

	rootCmd.AddCommand(newLookupCommand())
	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newHookCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printYAML(v any) {
	out, err := yaml.Marshal(v)
	if err != nil {
		fmt.Printf("Error encoding output: %v\n", err)
		return
	}
	fmt.Print(string(out))
}

func printIdentities(ids []identity.Identity) {
	if output == "yaml" {
		printYAML(ids)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, '\t', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tORGANIZATION\tREPLY-TO\tBCC\tHTML")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n", id.Email, id.Name, id.Organization, id.ReplyTo, id.Bcc, id.HTMLSignature)
	}
	w.Flush()
}

func newLookupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup [login]",
		Short: "Show the directory identities of a login without touching the store",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := http.Get(serverAddr + apiPrefix + "/identities/" + url.PathEscape(args[0]))
			if err != nil {
				fmt.Printf("Error connecting to server: %v\n", err)
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				fmt.Printf("Error from server (%d): %s\n", resp.StatusCode, string(body))
				return
			}

			var result struct {
				Login      string `json:"login"`
				Key        string `json:"key"`
				Identities struct {
					Count int                 `json:"count"`
					Items []identity.Identity `json:"items"`
				} `json:"identities"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				fmt.Printf("Error decoding server response: %v\n", err)
				return
			}

			fmt.Printf("Login %q searched as %q: %d identities\n", result.Login, result.Key, result.Identities.Count)
			printIdentities(result.Identities.Items)
		},
	}
}

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [login]",
		Short: "Run a sync for a login and show the deletions",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := http.Post(serverAddr+apiPrefix+"/sync/"+url.PathEscape(args[0]), "application/json", nil)
			if err != nil {
				fmt.Printf("Error connecting to server: %v\n", err)
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			var view api.SyncView
			if err := json.Unmarshal(body, &view); err != nil {
				fmt.Printf("Unexpected response (%d): %s\n", resp.StatusCode, string(body))
				return
			}

			if output == "yaml" {
				printYAML(view)
				return
			}

			switch hook.OutcomeKind(view.Outcome) {
			case hook.OutcomeDirectoryError:
				fmt.Printf("✗ Directory error: %s\n", view.Error)
				return
			case hook.OutcomeNotFound:
				fmt.Printf("No directory entry for %q, nothing synced\n", view.Login)
				return
			}

			fmt.Printf("✓ Synced %q (changed since last sync: %t)\n", view.Login, view.Changed)
			if len(view.Deletions) == 0 {
				return
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, '\t', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tSTATUS\tERROR")
			for _, d := range view.Deletions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Email, d.Status, d.Error)
			}
			w.Flush()
		},
	}
}

func newHookCommand() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "hook [login]",
		Short: "Send a user2email hook event as the webmail would",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ev := hook.LoginEvent{Login: args[0], First: true}
			if email != "" {
				ev.Email = email
			}
			payload, _ := json.Marshal(ev)

			resp, err := http.Post(serverAddr+"/hooks/user2email", "application/json", bytes.NewReader(payload))
			if err != nil {
				fmt.Printf("Error connecting to server: %v\n", err)
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				fmt.Printf("Error from server (%d): %s\n", resp.StatusCode, string(body))
				return
			}

			var out map[string]any
			if err := json.Unmarshal(body, &out); err != nil {
				fmt.Printf("Error decoding server response: %v\n", err)
				return
			}
			printYAML(out)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email value the webmail would pass in")
	return cmd
}

func newAuditCommand() *cobra.Command {
	var export string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the sync audit trail of the running server",
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := http.Get(serverAddr + apiPrefix + "/audit")
			if err != nil {
				fmt.Printf("Error connecting to server: %v\n", err)
				return
			}
			defer resp.Body.Close()

			var result struct {
				Counts  map[string]int `json:"counts"`
				Entries []audit.Entry  `json:"entries"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				fmt.Printf("Error decoding server response: %v\n", err)
				return
			}

			if export != "" {
				f, err := os.Create(export)
				if err != nil {
					fmt.Printf("Error creating %s: %v\n", export, err)
					return
				}
				defer f.Close()
				if err := audit.WriteXLSX(f, result.Entries); err != nil {
					fmt.Printf("Error writing %s: %v\n", export, err)
					return
				}
				fmt.Printf("✓ Exported %d audit entries to %s\n", len(result.Entries), export)
				return
			}

			if output == "yaml" {
				printYAML(result)
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, '\t', 0)
			fmt.Fprintln(w, "TIME\tACTION\tLOGIN\tIDENTITY\tEMAIL\tERROR")
			for _, e := range result.Entries {
				var errStr string
				if e.Error != nil {
					errStr = e.Error.Error()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Login, e.IdentityID, e.Email, errStr)
			}
			w.Flush()
		},
	}
	cmd.Flags().StringVar(&export, "export", "", "Write the audit trail to an xlsx file")
	return cmd
}

func newConfigCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect a local aliassync configuration file",
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.LoadConfig(file)
			if err != nil {
				fmt.Printf("Error loading config: %v\n", err)
				return
			}
			if err := cfg.Validate(); err != nil {
				fmt.Printf("✗ Invalid configuration:\n%v\n", err)
				return
			}
			fmt.Println("✓ Configuration is valid")
		},
	}

	view := &cobra.Command{
		Use:   "view",
		Short: "Print the effective configuration with secrets masked",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.LoadConfig(file)
			if err != nil {
				fmt.Printf("Error loading config: %v\n", err)
				return
			}
			printYAML(cfg.Redacted())
		},
	}

	cmd.PersistentFlags().StringVarP(&file, "file", "f", "/etc/aliassync/config.yaml", "Configuration file")
	cmd.AddCommand(validate, view)
	return cmd
}
