package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/betbot/sharefund/internal/journal"
	"github.com/betbot/sharefund/internal/server"
	"github.com/betbot/sharefund/pkg/sdk/fundclient"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	// 样式定义
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	upStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // 绿色
	downStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // 红色

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live terminal dashboard of equity, share price and recent events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		p := tea.NewProgram(newWatchModel(ctx, newClient(), watchInterval), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "refresh interval")
}

// dashboardSource watch 需要的数据来源
type dashboardSource interface {
	Fund(ctx context.Context) (*server.FundStatus, error)
	Events(ctx context.Context, q fundclient.EventQuery) ([]journal.EventRecord, error)
}

type tickMsg time.Time

type refreshMsg struct {
	status *server.FundStatus
	events []journal.EventRecord
	err    error
	at     time.Time
}

// watchModel 是仪表盘的状态
type watchModel struct {
	ctx      context.Context
	src      dashboardSource
	interval time.Duration

	status    *server.FundStatus
	prevPrice *big.Int
	trend     int // 与上一次刷新相比的价格方向
	events    []journal.EventRecord
	err       error
	updatedAt time.Time
}

func newWatchModel(ctx context.Context, src dashboardSource, interval time.Duration) watchModel {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return watchModel{ctx: ctx, src: src, interval: interval}
}

func (m watchModel) Init() tea.Cmd {
	return refreshCmd(m.ctx, m.src)
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func refreshCmd(ctx context.Context, src dashboardSource) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		st, err := src.Fund(ctx)
		if err != nil {
			return refreshMsg{err: err, at: time.Now()}
		}
		// 事件接口在未启用流水时返回 404，不影响主面板
		events, _ := src.Events(ctx, fundclient.EventQuery{Limit: 8})
		return refreshMsg{status: st, events: events, at: time.Now()}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, refreshCmd(m.ctx, m.src)
		}

	case tickMsg:
		return m, refreshCmd(m.ctx, m.src)

	case refreshMsg:
		m.err = msg.err
		m.updatedAt = msg.at
		if msg.status != nil {
			price, ok := new(big.Int).SetString(msg.status.SharePrice.Raw, 10)
			if ok && m.prevPrice != nil {
				m.trend = price.Cmp(m.prevPrice)
			}
			if ok {
				m.prevPrice = price
			}
			m.status = msg.status
			m.events = msg.events
		}
		return m, tickCmd(m.interval)
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("sharefund watch"))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render(fmt.Sprintf("updated %s  (r refresh, q quit)", m.updatedAt.Format("15:04:05"))))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n\n")
	}
	if m.status == nil {
		b.WriteString("loading...\n")
		return b.String()
	}

	st := m.status
	price := st.SharePrice.Display
	switch {
	case m.trend > 0:
		price = upStyle.Render(price + " ▲")
	case m.trend < 0:
		price = downStyle.Render(price + " ▼")
	}
	line := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-14s", label)) + value + "\n"
	}
	var panel strings.Builder
	panel.WriteString(line("strategy", st.Strategy))
	panel.WriteString(line("equity", st.Equity.Display))
	panel.WriteString(line("  on hand", st.OnHand.Display))
	panel.WriteString(line("  in venue", st.InVenue.Display))
	panel.WriteString(line("total shares", st.TotalShares.Display))
	panel.WriteString(line("share price", price))
	panel.WriteString(line("fees", fmt.Sprintf("buy %d bps / sell %d bps", st.BuyFeeBps, st.SellFeeBps)))
	b.WriteString(borderStyle.Render(strings.TrimRight(panel.String(), "\n")))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("recent events"))
	b.WriteString("\n")
	if len(m.events) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, ev := range m.events {
		b.WriteString(fmt.Sprintf("  %s  %-13s %s\n", ev.TS.Local().Format("15:04:05"), ev.Type, shortAddr(ev.Holder)))
	}
	return b.String()
}

func shortAddr(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:6] + "…" + a[len(a)-4:]
}
