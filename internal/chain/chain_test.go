package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	hardhatMnemonic = "test test test test test test test test test test test junk"
	hardhatKey      = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var hardhatAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// fakeClient 按方法选择器返回预设结果，记录发出的交易
type fakeClient struct {
	mu      sync.Mutex
	results map[string][]byte
	sent    []*ethtypes.Transaction
	status  uint64
	pending int // 前 N 次查询回执返回 NotFound
}

func newFakeClient() *fakeClient {
	return &fakeClient{results: make(map[string][]byte), status: ethtypes.ReceiptStatusSuccessful}
}

func (c *fakeClient) on(method string, raw []byte) {
	c.results[method] = raw
}

func selectorName(data []byte) string {
	for name, m := range erc20ABI.Methods {
		if len(data) >= 4 && string(m.ID) == string(data[:4]) {
			return name
		}
	}
	for name, m := range poolABI.Methods {
		if len(data) >= 4 && string(m.ID) == string(data[:4]) {
			return "pool." + name
		}
	}
	return ""
}

func (c *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.results[selectorName(msg.Data)]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return raw, nil
}

func (c *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.sent)), nil
}

func (c *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(30e9), nil }

func (c *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, errors.New("estimate unsupported")
}

func (c *fakeClient) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, tx)
	return nil
}

func (c *fakeClient) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending > 0 {
		c.pending--
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{TxHash: hash, Status: c.status}, nil
}

func pack(t *testing.T, method string, vals ...interface{}) []byte {
	t.Helper()
	m, ok := erc20ABI.Methods[method]
	if !ok {
		m = poolABI.Methods[method]
	}
	raw, err := m.Outputs.Pack(vals...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return raw
}

func newTestTransactor(t *testing.T, c *fakeClient) *Transactor {
	t.Helper()
	s, err := NewSigner(hardhatKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	tx := NewTransactor(c, s, big.NewInt(137))
	tx.PollInterval = time.Millisecond
	tx.WaitTimeout = time.Second
	return tx
}

func TestSignerFromMnemonic(t *testing.T) {
	s, err := SignerFromMnemonic(hardhatMnemonic, "")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if s.Address() != hardhatAddr {
		t.Fatalf("address got=%s want=%s", s.Address().Hex(), hardhatAddr.Hex())
	}
	k, err := NewSigner(hardhatKey)
	if err != nil {
		t.Fatalf("hex key: %v", err)
	}
	if k.Address() != hardhatAddr {
		t.Fatalf("hex key address got=%s", k.Address().Hex())
	}
	if _, err := SignerFromMnemonic("", ""); err == nil {
		t.Fatal("empty mnemonic should fail")
	}
}

func TestTokenReads(t *testing.T) {
	c := newFakeClient()
	c.on("decimals", pack(t, "decimals", uint8(6)))
	c.on("balanceOf", pack(t, "balanceOf", big.NewInt(1_234_567)))
	tok := NewToken(common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), newTestTransactor(t, c))

	d, err := tok.Decimals(context.Background())
	if err != nil || d != 6 {
		t.Fatalf("decimals got=%d err=%v", d, err)
	}
	bal, err := tok.BalanceOf(context.Background(), hardhatAddr)
	if err != nil || bal.Int64() != 1_234_567 {
		t.Fatalf("balance got=%v err=%v", bal, err)
	}
}

func TestTokenTransferSendsSignedTx(t *testing.T) {
	c := newFakeClient()
	c.on("transfer", pack(t, "transfer", true))
	c.pending = 2
	token := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	tok := NewToken(token, newTestTransactor(t, c))

	if err := tok.Transfer(context.Background(), common.HexToAddress("0x01"), big.NewInt(5)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(c.sent) != 1 {
		t.Fatalf("sent %d txs", len(c.sent))
	}
	tx := c.sent[0]
	from, err := ethtypes.Sender(ethtypes.NewEIP155Signer(big.NewInt(137)), tx)
	if err != nil || from != hardhatAddr {
		t.Fatalf("sender got=%s err=%v", from.Hex(), err)
	}
	if *tx.To() != token || tx.Gas() != fallbackGasLimit {
		t.Fatalf("unexpected tx to=%s gas=%d", tx.To().Hex(), tx.Gas())
	}
}

func TestTokenTransferFalseIsFailure(t *testing.T) {
	c := newFakeClient()
	c.on("transfer", pack(t, "transfer", false))
	tok := NewToken(common.HexToAddress("0x02"), newTestTransactor(t, c))

	err := tok.Transfer(context.Background(), common.HexToAddress("0x01"), big.NewInt(5))
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed, got %v", err)
	}
	if len(c.sent) != 0 {
		t.Fatal("no tx should be sent when simulation returns false")
	}
}

func TestRevertedReceipt(t *testing.T) {
	c := newFakeClient()
	c.on("approve", pack(t, "approve", true))
	c.status = ethtypes.ReceiptStatusFailed
	tok := NewToken(common.HexToAddress("0x02"), newTestTransactor(t, c))

	err := tok.Approve(context.Background(), common.HexToAddress("0x03"), big.NewInt(1))
	if !errors.Is(err, ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
}

func TestPoolReserveAndWithdraw(t *testing.T) {
	c := newFakeClient()
	aToken := common.HexToAddress("0x625E7708f30cA75bfd92586e17077590C60eb4cD")
	zero := big.NewInt(0)
	c.on("pool.getReserveData", pack(t, "getReserveData",
		zero, zero, zero, zero, zero, zero, zero, uint16(4),
		aToken, common.Address{}, common.Address{}, common.Address{},
		zero, zero, zero,
	))
	c.on("pool.withdraw", pack(t, "withdraw", big.NewInt(900)))
	c.on("balanceOf", pack(t, "balanceOf", big.NewInt(77)))

	p := NewPool(common.HexToAddress("0x794a61358D6845594F94dc1DB02A252b5b4814aD"), newTestTransactor(t, c))
	ctx := context.Background()

	got, err := p.ReserveReceipt(ctx, common.HexToAddress("0x02"))
	if err != nil || got != aToken {
		t.Fatalf("receipt got=%s err=%v", got.Hex(), err)
	}
	bal, err := p.ReceiptBalanceOf(ctx, aToken, hardhatAddr)
	if err != nil || bal.Int64() != 77 {
		t.Fatalf("receipt balance got=%v err=%v", bal, err)
	}
	out, err := p.Withdraw(ctx, common.HexToAddress("0x02"), big.NewInt(1000), hardhatAddr)
	if err != nil || out.Int64() != 900 {
		t.Fatalf("withdraw got=%v err=%v", out, err)
	}
	if err := p.Supply(ctx, common.HexToAddress("0x02"), big.NewInt(1), hardhatAddr, 0); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if len(c.sent) != 2 {
		t.Fatalf("sent %d txs, want 2", len(c.sent))
	}
}

type countingLimiter struct {
	waits int
	err   error
}

func (l *countingLimiter) Wait(context.Context) error {
	l.waits++
	return l.err
}

func (l *countingLimiter) Allow() bool { return l.err == nil }

func TestRateLimitedClient(t *testing.T) {
	c := newFakeClient()
	c.on("decimals", pack(t, "decimals", uint8(18)))
	lim := &countingLimiter{}
	s, err := NewSigner(hardhatKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	tok := NewToken(common.HexToAddress("0x02"), NewTransactor(WithRateLimit(c, lim), s, big.NewInt(137)))

	if d, err := tok.Decimals(context.Background()); err != nil || d != 18 {
		t.Fatalf("decimals got=%d err=%v", d, err)
	}
	if lim.waits != 1 {
		t.Fatalf("waits=%d want 1", lim.waits)
	}

	lim.err = context.DeadlineExceeded
	if _, err := tok.Decimals(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected limiter error, got %v", err)
	}

	if WithRateLimit(c, nil) != Client(c) {
		t.Fatal("nil limiter should return the client unchanged")
	}
}
