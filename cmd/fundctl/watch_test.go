package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/betbot/sharefund/internal/journal"
	"github.com/betbot/sharefund/internal/server"
	"github.com/betbot/sharefund/pkg/sdk/fundclient"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	price string
	err   error
}

func (s *stubSource) Fund(context.Context) (*server.FundStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &server.FundStatus{
		Strategy:   "hold",
		Equity:     server.Amount{Raw: "1000000", Display: "1.000000"},
		SharePrice: server.Amount{Raw: s.price, Display: s.price},
	}, nil
}

func (s *stubSource) Events(context.Context, fundclient.EventQuery) ([]journal.EventRecord, error) {
	return []journal.EventRecord{{Type: "deposit", Holder: "0x1234567890abcdef1234567890abcdef12345678", TS: time.Now()}}, nil
}

func refresh(t *testing.T, m watchModel) watchModel {
	t.Helper()
	msg := refreshCmd(context.Background(), m.src)()
	next, cmd := m.Update(msg)
	require.NotNil(t, cmd, "refresh should schedule the next tick")
	return next.(watchModel)
}

func TestWatchModelTracksPriceTrend(t *testing.T) {
	src := &stubSource{price: "1000000"}
	m := newWatchModel(context.Background(), src, time.Second)
	assert.Contains(t, m.View(), "loading")

	m = refresh(t, m)
	assert.Equal(t, 0, m.trend)
	view := m.View()
	assert.Contains(t, view, "1.000000")
	assert.Contains(t, view, "deposit")
	assert.Contains(t, view, "0x1234…5678")

	src.price = "1010000"
	m = refresh(t, m)
	assert.Equal(t, 1, m.trend)

	src.price = "1000000"
	m = refresh(t, m)
	assert.Equal(t, -1, m.trend)
}

func TestWatchModelKeepsLastStatusOnError(t *testing.T) {
	src := &stubSource{price: "1000000"}
	m := refresh(t, newWatchModel(context.Background(), src, 0))

	src.err = errors.New("connection refused")
	m = refresh(t, m)
	require.NotNil(t, m.status)
	assert.True(t, strings.Contains(m.View(), "connection refused"))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
