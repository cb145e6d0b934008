// Package fundclient 基金 HTTP API 的 Go 客户端（fundctl 使用）
package fundclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/betbot/sharefund/internal/journal"
	"github.com/betbot/sharefund/internal/server"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// StatusOf 取出 APIError 的状态码；其他错误返回 0
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type Client struct {
	read     *resty.Client
	write    *resty.Client
	adminKey string
}

// NewClient 创建客户端。只读请求带重试；写请求不重试，避免重复买卖。
func NewClient(host, adminKey string) *Client {
	host = strings.TrimSuffix(host, "/")
	read := resty.New().
		SetBaseURL(host).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	write := resty.New().
		SetBaseURL(host).
		SetTimeout(60 * time.Second)
	return &Client{read: read, write: write, adminKey: adminKey}
}

func (c *Client) newRequest(ctx context.Context, rc *resty.Client, admin bool) *resty.Request {
	r := rc.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "sharefund-fundctl")
	if admin && c.adminKey != "" {
		r.SetHeader(server.AdminKeyHeader, c.adminKey)
	}
	return r
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	r := c.newRequest(ctx, c.read, false).SetResult(out)
	if len(params) > 0 {
		r.SetQueryParams(params)
	}
	resp, err := r.Get(endpoint)
	return checkResponse(http.MethodGet, endpoint, resp, err)
}

func (c *Client) send(ctx context.Context, method, endpoint string, admin bool, body, out any) error {
	r := c.newRequest(ctx, c.write, admin).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if out != nil {
		r.SetResult(out)
	}
	resp, err := r.Execute(method, endpoint)
	return checkResponse(method, endpoint, resp, err)
}

func checkResponse(method, endpoint string, resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, endpoint)
	}
	if resp.IsSuccess() {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(resp.Body()))
	if json.Unmarshal(resp.Body(), &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return errors.WithMessagef(&APIError{Status: resp.StatusCode(), Message: msg}, "%s %s", method, endpoint)
}

// Fund 基金总览
func (c *Client) Fund(ctx context.Context) (*server.FundStatus, error) {
	var out server.FundStatus
	if err := c.get(ctx, "/api/fund", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Holder 持有人份额与价值
func (c *Client) Holder(ctx context.Context, holder string) (*server.HolderStatus, error) {
	var out server.HolderStatus
	if err := c.get(ctx, "/api/holders/"+holder, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Buy amount 为资产单位的十进制字符串
func (c *Client) Buy(ctx context.Context, holder, amount string) (*server.BuyResponse, error) {
	var out server.BuyResponse
	err := c.send(ctx, http.MethodPost, "/api/buy", false, map[string]string{"holder": holder, "amount": amount}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Sell shares 为份额单位的十进制字符串
func (c *Client) Sell(ctx context.Context, holder, shares string) (*server.SellResponse, error) {
	var out server.SellResponse
	err := c.send(ctx, http.MethodPost, "/api/sell", false, map[string]string{"holder": holder, "shares": shares}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// EventQuery 事件查询条件
type EventQuery struct {
	Type   string
	Holder string
	Limit  int
}

func (c *Client) Events(ctx context.Context, q EventQuery) ([]journal.EventRecord, error) {
	params := map[string]string{}
	if q.Type != "" {
		params["type"] = q.Type
	}
	if q.Holder != "" {
		params["holder"] = q.Holder
	}
	if q.Limit > 0 {
		params["limit"] = fmt.Sprint(q.Limit)
	}
	var out struct {
		Events []journal.EventRecord `json:"events"`
	}
	if err := c.get(ctx, "/api/events", params, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) EquitySnapshots(ctx context.Context, limit int) ([]journal.EquitySnapshot, error) {
	var out struct {
		Snapshots []journal.EquitySnapshot `json:"snapshots"`
	}
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = fmt.Sprint(limit)
	}
	if err := c.get(ctx, "/api/equity/snapshots", params, &out); err != nil {
		return nil, err
	}
	return out.Snapshots, nil
}

// SetFee kind 为 "buy" 或 "sell"
func (c *Client) SetFee(ctx context.Context, kind string, bps int) error {
	return c.send(ctx, http.MethodPut, "/api/admin/"+kind+"-fee", true, map[string]int{"bps": bps}, nil)
}

func (c *Client) SetMinInvestment(ctx context.Context, amount string) error {
	return c.send(ctx, http.MethodPut, "/api/admin/min-investment", true, map[string]string{"amount": amount}, nil)
}

func (c *Client) SetFeeCollector(ctx context.Context, addr string) error {
	return c.send(ctx, http.MethodPut, "/api/admin/fee-collector", true, map[string]string{"address": addr}, nil)
}

func (c *Client) TransferOwnership(ctx context.Context, addr string) error {
	return c.send(ctx, http.MethodPut, "/api/admin/owner", true, map[string]string{"address": addr}, nil)
}

// SimMint 模拟模式：给 holder 发币并授权基金
func (c *Client) SimMint(ctx context.Context, holder, amount string) error {
	return c.send(ctx, http.MethodPost, "/api/sim/mint", false, map[string]string{"holder": holder, "amount": amount}, nil)
}

// SimAccrue 模拟模式：收益场所计息 bps
func (c *Client) SimAccrue(ctx context.Context, bps int64) error {
	return c.send(ctx, http.MethodPost, "/api/sim/accrue", false, map[string]int64{"bps": bps}, nil)
}
