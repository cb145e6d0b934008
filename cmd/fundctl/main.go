// fundctl fundd 的命令行客户端
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/betbot/sharefund/pkg/sdk/fundclient"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	adminKey  string
	timeout   time.Duration
	asJSON    bool
)

var rootCmd = &cobra.Command{
	Use:          "fundctl",
	Short:        "Command line client for the fundd share pool service",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SHAREFUND_URL", "http://127.0.0.1:8080"), "fundd base URL")
	rootCmd.PersistentFlags().StringVar(&adminKey, "admin-key", os.Getenv("SHAREFUND_ADMIN_KEY"), "admin key for /api/admin endpoints")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON")

	rootCmd.AddCommand(statusCmd, holderCmd, buyCmd, sellCmd, eventsCmd, snapshotsCmd, adminCmd, simCmd, watchCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClient() *fundclient.Client {
	return fundclient.NewClient(serverURL, adminKey)
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// output 非 --json 时使用 human 输出
func output(v any, human func()) error {
	if asJSON {
		return printJSON(v)
	}
	human()
	return nil
}

func printKV(rows [][2]string) {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	for _, r := range rows {
		fmt.Printf("%-*s  %s\n", width, r[0], r[1])
	}
}
