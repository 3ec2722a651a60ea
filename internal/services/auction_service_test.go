package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mx-auction/backend/internal/chain"
	"github.com/mx-auction/backend/internal/config"
	"github.com/mx-auction/backend/internal/events"
	"github.com/mx-auction/backend/internal/models"
	"github.com/mx-auction/backend/internal/repositories"
)

var (
	sellerAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001").Hex()
	bidderA      = common.HexToAddress("0x2000000000000000000000000000000000000002").Hex()
	bidderB      = common.HexToAddress("0x3000000000000000000000000000000000000003").Hex()
	assetAddr    = common.HexToAddress("0x4000000000000000000000000000000000000004").Hex()
	tokenAddr    = common.HexToAddress("0x5000000000000000000000000000000000000005").Hex()
	operatorAddr = common.HexToAddress("0x9000000000000000000000000000000000000009")
)

// fakeTx satisfies pgx.Tx for the two methods the service calls directly.
// The fakes apply mutations immediately; credit restoration in the service
// is explicit rather than rollback-driven, so this is faithful.
type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeState struct {
	mu       sync.Mutex
	nextID   int64
	auctions map[int64]*models.Auction
	bids     []models.Bid
	returns  map[string]decimal.Decimal // auctionID|bidder
	credits  map[string]bool            // funding tx hashes converted to credits
	escrows  map[int64]*models.EscrowedAsset
	payouts  map[uuid.UUID]*models.Payout
	audits   []models.AuditLog
}

func newFakeState() *fakeState {
	return &fakeState{
		nextID:   1,
		auctions: make(map[int64]*models.Auction),
		returns:  make(map[string]decimal.Decimal),
		credits:  make(map[string]bool),
		escrows:  make(map[int64]*models.EscrowedAsset),
		payouts:  make(map[uuid.UUID]*models.Payout),
	}
}

func rkey(auctionID int64, bidder string) string {
	return fmt.Sprintf("%d|%s", auctionID, bidder)
}

func (s *fakeState) bidTxUsed(hash string) bool {
	for _, b := range s.bids {
		if b.FundingTxHash != nil && *b.FundingTxHash == hash {
			return true
		}
	}
	return false
}

type fakeAuctions struct{ s *fakeState }

func (f *fakeAuctions) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (f *fakeAuctions) Create(_ context.Context, _ pgx.Tx, a *models.Auction) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a.ID = f.s.nextID
	f.s.nextID++
	cp := *a
	f.s.auctions[a.ID] = &cp
	return nil
}

func (f *fakeAuctions) GetByID(_ context.Context, id int64) (*models.Auction, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a, ok := f.s.auctions[id]
	if !ok {
		return nil, models.ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAuctions) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id int64) (*models.Auction, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeAuctions) UpdateHighestBid(_ context.Context, _ pgx.Tx, id int64, bidder string, amount decimal.Decimal) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a := f.s.auctions[id]
	a.HighestBidder = &bidder
	a.HighestBid = amount
	return nil
}

func (f *fakeAuctions) MarkSettled(_ context.Context, _ pgx.Tx, id int64) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a := f.s.auctions[id]
	if a.Status != models.AuctionStatusActive {
		return false, nil
	}
	a.Status = models.AuctionStatusSettled
	return true, nil
}

func (f *fakeAuctions) List(context.Context, repositories.AuctionFilter) ([]models.Auction, error) {
	return nil, nil
}

func (f *fakeAuctions) GetExpiredActive(_ context.Context, limit int) ([]models.Auction, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	now := time.Now().UTC()
	var out []models.Auction
	for _, a := range f.s.auctions {
		if a.Status == models.AuctionStatusActive && now.After(a.EndTime) {
			out = append(out, *a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeBids struct{ s *fakeState }

func (f *fakeBids) Create(_ context.Context, _ pgx.Tx, b *models.Bid) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if b.FundingTxHash != nil {
		if f.s.credits[*b.FundingTxHash] || f.s.bidTxUsed(*b.FundingTxHash) {
			return models.ErrFundingTxUsed
		}
	}
	b.ID = uuid.New()
	f.s.bids = append(f.s.bids, *b)
	return nil
}

func (f *fakeBids) ListByAuction(_ context.Context, auctionID int64, _ int) ([]models.Bid, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Bid
	for _, b := range f.s.bids {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeReturns struct{ s *fakeState }

func (f *fakeReturns) Increase(_ context.Context, _ pgx.Tx, auctionID int64, bidder string, amount decimal.Decimal) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	k := rkey(auctionID, bidder)
	f.s.returns[k] = f.s.returns[k].Add(amount)
	return nil
}

func (f *fakeReturns) CreditFundingTx(ctx context.Context, tx pgx.Tx, auctionID int64, bidder, txHash string, amount decimal.Decimal) error {
	f.s.mu.Lock()
	used := f.s.credits[txHash] || f.s.bidTxUsed(txHash)
	if !used {
		f.s.credits[txHash] = true
	}
	f.s.mu.Unlock()
	if used {
		return models.ErrFundingTxUsed
	}
	return f.Increase(ctx, tx, auctionID, bidder, amount)
}

func (f *fakeReturns) TakeAll(_ context.Context, _ pgx.Tx, auctionID int64, bidder string) (decimal.Decimal, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	k := rkey(auctionID, bidder)
	amount := f.s.returns[k]
	if amount.IsZero() {
		return decimal.Zero, models.ErrNoPendingReturn
	}
	f.s.returns[k] = decimal.Zero
	return amount, nil
}

func (f *fakeReturns) Peek(_ context.Context, auctionID int64, bidder string) (decimal.Decimal, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.returns[rkey(auctionID, bidder)], nil
}

func (f *fakeReturns) ListByBidder(context.Context, string) ([]models.PendingReturn, error) {
	return nil, nil
}

type fakeEscrow struct{ s *fakeState }

func (f *fakeEscrow) Create(_ context.Context, _ pgx.Tx, e *models.EscrowedAsset) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e.ID = uuid.New()
	e.Status = models.EscrowStatusHeld
	cp := *e
	f.s.escrows[e.AuctionID] = &cp
	return nil
}

func (f *fakeEscrow) GetByAuctionID(_ context.Context, auctionID int64) (*models.EscrowedAsset, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.escrows[auctionID]
	if !ok {
		return nil, models.ErrAuctionNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEscrow) ClaimRelease(_ context.Context, auctionID int64) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.escrows[auctionID]
	if !ok || e.Status != models.EscrowStatusHeld {
		return false, nil
	}
	e.Status = models.EscrowStatusReleasing
	return true, nil
}

func (f *fakeEscrow) MarkReleased(_ context.Context, auctionID int64, releasedTo, txHash string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e := f.s.escrows[auctionID]
	e.Status = models.EscrowStatusReleased
	e.ReleasedTo = &releasedTo
	e.ReleaseTxHash = &txHash
	return nil
}

func (f *fakeEscrow) ReleaseFailed(_ context.Context, auctionID int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.escrows[auctionID].Status = models.EscrowStatusHeld
	return nil
}

func (f *fakeEscrow) GetHeldForSettled(_ context.Context, limit int) ([]models.EscrowedAsset, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.EscrowedAsset
	for id, e := range f.s.escrows {
		a := f.s.auctions[id]
		if a != nil && a.Status == models.AuctionStatusSettled && e.Status == models.EscrowStatusHeld {
			out = append(out, *e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakePayouts struct{ s *fakeState }

func (f *fakePayouts) Create(_ context.Context, _ pgx.Tx, p *models.Payout) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p.ID = uuid.New()
	p.Status = models.PayoutStatusPending
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	f.s.payouts[p.ID] = &cp
	return nil
}

func (f *fakePayouts) MarkSent(_ context.Context, id uuid.UUID, txHash string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p := f.s.payouts[id]
	if p.Status == models.PayoutStatusPending {
		p.Status = models.PayoutStatusSent
		p.TxHash = &txHash
		p.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (f *fakePayouts) MarkConfirmed(_ context.Context, id uuid.UUID, txHash string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p := f.s.payouts[id]
	if p.Status == models.PayoutStatusPending || p.Status == models.PayoutStatusSent {
		p.Status = models.PayoutStatusConfirmed
		p.TxHash = &txHash
	}
	return nil
}

func (f *fakePayouts) MarkFailed(_ context.Context, id uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p := f.s.payouts[id]
	if p.Status != models.PayoutStatusPending && p.Status != models.PayoutStatusSent {
		return false, nil
	}
	p.Status = models.PayoutStatusFailed
	return true, nil
}

func (f *fakePayouts) GetUnresolved(_ context.Context, pendingAfter time.Duration, limit int) ([]models.Payout, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Payout
	for _, p := range f.s.payouts {
		switch {
		case p.Status == models.PayoutStatusSent:
			out = append(out, *p)
		case p.Status == models.PayoutStatusPending && time.Since(p.UpdatedAt) > pendingAfter:
			out = append(out, *p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeAudit struct{ s *fakeState }

func (f *fakeAudit) Log(_ context.Context, entry *models.AuditLog) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.audits = append(f.s.audits, *entry)
	return nil
}

func (f *fakeAudit) GetByAuction(_ context.Context, auctionID int64, _ int) ([]models.AuditLog, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.AuditLog
	for _, e := range f.s.audits {
		if e.AuctionID != nil && *e.AuctionID == auctionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type transactResult struct {
	hash string
	err  error
}

// fakeChain scripts the operator wallet. Transact pops from a queue; an
// empty queue means success with a generated hash.
type fakeChain struct {
	mu        sync.Mutex
	transfers map[string]*chain.NativeTransfer
	calls     map[string][]interface{}
	queue     []transactResult
	confirms  map[string]error
	sent      int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		transfers: make(map[string]*chain.NativeTransfer),
		calls:     make(map[string][]interface{}),
		confirms:  make(map[string]error),
	}
}

func (c *fakeChain) script(results ...transactResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, results...)
}

func (c *fakeChain) Call(_ context.Context, _ common.Address, _ abi.ABI, method string, _ ...interface{}) ([]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.calls[method]
	if !ok {
		return nil, fmt.Errorf("no result scripted for %s", method)
	}
	return out, nil
}

func (c *fakeChain) Transact(context.Context, common.Address, *big.Int, []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	if len(c.queue) > 0 {
		r := c.queue[0]
		c.queue = c.queue[1:]
		return r.hash, r.err
	}
	return fmt.Sprintf("0xsent%04d", c.sent), nil
}

func (c *fakeChain) NativeTransfer(_ context.Context, txHash string) (*chain.NativeTransfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tr, ok := c.transfers[txHash]
	if !ok {
		return nil, chain.ErrTxNotFound
	}
	return tr, nil
}

func (c *fakeChain) ConfirmTx(_ context.Context, txHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirms[txHash]
}

func (c *fakeChain) Operator() common.Address { return operatorAddr }

type fakePrice struct {
	reading *models.PriceReading
	err     error
}

func (p *fakePrice) Read(context.Context, string) (*models.PriceReading, error) {
	return p.reading, p.err
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, events.Event) error { return nil }

type fixture struct {
	state *fakeState
	chain *fakeChain
	cfg   *config.Config
	svc   *AuctionService
}

func newFixture(price PriceSource) *fixture {
	state := newFakeState()
	chainClient := newFakeChain()
	cfg := &config.Config{
		MinDuration:      time.Minute,
		MaxDuration:      30 * 24 * time.Hour,
		ReserveMaxUSD:    1000,
		PayoutStaleAfter: 15 * time.Minute,
	}
	svc := NewAuctionService(
		cfg,
		&fakeAuctions{state},
		&fakeBids{state},
		&fakeReturns{state},
		&fakeEscrow{state},
		&fakePayouts{state},
		&fakeAudit{state},
		chainClient,
		price,
		nopPublisher{},
		zap.NewNop(),
	)
	return &fixture{state: state, chain: chainClient, cfg: cfg, svc: svc}
}

// seedNativeAuction installs an open native-currency auction with its asset
// already in escrow.
func (f *fixture) seedNativeAuction(reserve int64, window time.Duration) int64 {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	id := f.state.nextID
	f.state.nextID++
	now := time.Now().UTC()
	f.state.auctions[id] = &models.Auction{
		ID:            id,
		Seller:        sellerAddr,
		AssetContract: assetAddr,
		AssetID:       decimal.NewFromInt(7),
		CurrencyKind:  models.CurrencyNative,
		ReservePrice:  decimal.NewFromInt(reserve),
		StartTime:     now.Add(-time.Minute),
		EndTime:       now.Add(window),
		HighestBid:    decimal.Zero,
		Status:        models.AuctionStatusActive,
	}
	f.state.escrows[id] = &models.EscrowedAsset{
		ID:            uuid.New(),
		AuctionID:     id,
		AssetContract: assetAddr,
		AssetID:       decimal.NewFromInt(7),
		DepositTxHash: "0xdeposit",
		Status:        models.EscrowStatusHeld,
	}
	return id
}

func (f *fixture) seedDeposit(hash, from string, value int64) {
	f.chain.mu.Lock()
	defer f.chain.mu.Unlock()
	f.chain.transfers[hash] = &chain.NativeTransfer{
		Hash:  hash,
		From:  common.HexToAddress(from),
		To:    operatorAddr,
		Value: big.NewInt(value),
	}
}

func (f *fixture) pendingReturn(t *testing.T, auctionID int64, bidder string) decimal.Decimal {
	t.Helper()
	amount, err := f.svc.PendingReturnOf(context.Background(), auctionID, bidder)
	if err != nil {
		t.Fatalf("PendingReturnOf() err = %v", err)
	}
	return amount
}

func (f *fixture) nativeBid(t *testing.T, auctionID int64, bidder, fundingTx string) error {
	t.Helper()
	_, err := f.svc.PlaceBid(context.Background(), PlaceBidParams{
		AuctionID:     auctionID,
		Bidder:        bidder,
		FundingTxHash: &fundingTx,
	})
	return err
}

func (f *fixture) payoutByRecipient(t *testing.T, recipient string) *models.Payout {
	t.Helper()
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	var found *models.Payout
	for _, p := range f.state.payouts {
		if p.Recipient == recipient {
			if found != nil {
				t.Fatalf("multiple payouts for %s", recipient)
			}
			found = p
		}
	}
	if found == nil {
		t.Fatalf("no payout for %s", recipient)
	}
	return found
}

func TestPlaceBidRejectedNativeDepositCredited(t *testing.T) {
	t.Run("below reserve", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(100, time.Hour)
		f.seedDeposit("0xlow", bidderA, 50)

		err := f.nativeBid(t, id, bidderA, "0xlow")
		if !errors.Is(err, models.ErrBidTooLow) {
			t.Fatalf("PlaceBid() err = %v, want ErrBidTooLow", err)
		}
		if got := f.pendingReturn(t, id, bidderA); !got.Equal(decimal.NewFromInt(50)) {
			t.Errorf("pending return = %s, want 50", got)
		}
		if len(f.state.bids) != 0 {
			t.Errorf("bids recorded = %d, want 0", len(f.state.bids))
		}

		// Replaying the same deposit must not credit twice.
		if err := f.nativeBid(t, id, bidderA, "0xlow"); !errors.Is(err, models.ErrFundingTxUsed) {
			t.Fatalf("replayed PlaceBid() err = %v, want ErrFundingTxUsed", err)
		}
		if got := f.pendingReturn(t, id, bidderA); !got.Equal(decimal.NewFromInt(50)) {
			t.Errorf("pending return after replay = %s, want 50", got)
		}
	})

	t.Run("window closed", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(100, -time.Minute)
		f.seedDeposit("0xlate", bidderA, 200)

		err := f.nativeBid(t, id, bidderA, "0xlate")
		if !errors.Is(err, models.ErrAuctionWindowClosed) {
			t.Fatalf("PlaceBid() err = %v, want ErrAuctionWindowClosed", err)
		}
		if got := f.pendingReturn(t, id, bidderA); !got.Equal(decimal.NewFromInt(200)) {
			t.Errorf("pending return = %s, want 200", got)
		}
	})

	t.Run("deposit behind an accepted bid cannot be credited", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(100, time.Hour)
		f.seedDeposit("0xwin", bidderA, 200)

		if err := f.nativeBid(t, id, bidderA, "0xwin"); err != nil {
			t.Fatalf("PlaceBid() err = %v", err)
		}
		// Same hash again: the equal amount is rejected, and the credit path
		// must refuse the already-consumed deposit.
		if err := f.nativeBid(t, id, bidderA, "0xwin"); !errors.Is(err, models.ErrFundingTxUsed) {
			t.Fatalf("reused PlaceBid() err = %v, want ErrFundingTxUsed", err)
		}
		if got := f.pendingReturn(t, id, bidderA); !got.IsZero() {
			t.Errorf("pending return = %s, want 0", got)
		}
	})

	t.Run("credited deposit cannot later fund a bid", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(300, time.Hour)
		f.seedDeposit("0xshort", bidderA, 200)

		if err := f.nativeBid(t, id, bidderA, "0xshort"); !errors.Is(err, models.ErrBidTooLow) {
			t.Fatalf("PlaceBid() err = %v, want ErrBidTooLow", err)
		}
		// Reserve drops out of the picture: seed a second auction the
		// deposit would satisfy.
		id2 := f.seedNativeAuction(100, time.Hour)
		if err := f.nativeBid(t, id2, bidderA, "0xshort"); !errors.Is(err, models.ErrFundingTxUsed) {
			t.Fatalf("PlaceBid() with credited hash err = %v, want ErrFundingTxUsed", err)
		}
	})
}

func TestPendingReturnsAccumulateAndDrainOnce(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	id := f.seedNativeAuction(100, time.Hour)

	f.seedDeposit("0xa1", bidderA, 200)
	f.seedDeposit("0xb1", bidderB, 300)
	f.seedDeposit("0xa2", bidderA, 400)
	f.seedDeposit("0xb2", bidderB, 500)

	for _, bid := range []struct {
		bidder, tx string
	}{
		{bidderA, "0xa1"}, {bidderB, "0xb1"}, {bidderA, "0xa2"}, {bidderB, "0xb2"},
	} {
		if err := f.nativeBid(t, id, bid.bidder, bid.tx); err != nil {
			t.Fatalf("PlaceBid(%s) err = %v", bid.tx, err)
		}
	}

	// A was displaced twice: 200 + 400.
	if got := f.pendingReturn(t, id, bidderA); !got.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("accumulated pending return = %s, want 600", got)
	}

	amount, _, err := f.svc.Withdraw(ctx, id, bidderA)
	if err != nil {
		t.Fatalf("Withdraw() err = %v", err)
	}
	if !amount.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Withdraw() amount = %s, want 600", amount)
	}
	if got := f.pendingReturn(t, id, bidderA); !got.IsZero() {
		t.Errorf("pending return after withdraw = %s, want 0", got)
	}

	if _, _, err := f.svc.Withdraw(ctx, id, bidderA); !errors.Is(err, models.ErrNoPendingReturn) {
		t.Errorf("second Withdraw() err = %v, want ErrNoPendingReturn", err)
	}
}

func TestWithdrawPayoutOutcomes(t *testing.T) {
	ctx := context.Background()
	seedCredit := func(f *fixture, id int64) {
		f.state.mu.Lock()
		f.state.returns[rkey(id, bidderA)] = decimal.NewFromInt(600)
		f.state.mu.Unlock()
	}

	t.Run("unknown outcome keeps credit drained", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(100, time.Hour)
		seedCredit(f, id)
		f.chain.script(transactResult{hash: "0xpay1", err: fmt.Errorf("%w: rpc timeout", chain.ErrTxOutcomeUnknown)})

		amount, payTx, err := f.svc.Withdraw(ctx, id, bidderA)
		if err != nil {
			t.Fatalf("Withdraw() err = %v", err)
		}
		if !amount.Equal(decimal.NewFromInt(600)) || payTx != "0xpay1" {
			t.Fatalf("Withdraw() = (%s, %s)", amount, payTx)
		}
		// The transfer may have landed. The credit stays drained and the
		// intent stays open for reconciliation.
		if got := f.pendingReturn(t, id, bidderA); !got.IsZero() {
			t.Errorf("pending return = %s, want 0", got)
		}
		p := f.payoutByRecipient(t, bidderA)
		if p.Status != models.PayoutStatusSent {
			t.Errorf("payout status = %s, want sent", p.Status)
		}

		if _, _, err := f.svc.Withdraw(ctx, id, bidderA); !errors.Is(err, models.ErrNoPendingReturn) {
			t.Errorf("second Withdraw() err = %v, want ErrNoPendingReturn", err)
		}
	})

	t.Run("definite failure restores credit", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(100, time.Hour)
		seedCredit(f, id)
		f.chain.script(transactResult{hash: "", err: errors.New("insufficient funds for gas")})

		_, _, err := f.svc.Withdraw(ctx, id, bidderA)
		if !errors.Is(err, models.ErrCurrencyTransferFailed) {
			t.Fatalf("Withdraw() err = %v, want ErrCurrencyTransferFailed", err)
		}
		if got := f.pendingReturn(t, id, bidderA); !got.Equal(decimal.NewFromInt(600)) {
			t.Fatalf("pending return after failure = %s, want 600", got)
		}
		if p := f.payoutByRecipient(t, bidderA); p.Status != models.PayoutStatusFailed {
			t.Errorf("payout status = %s, want failed", p.Status)
		}

		// Retry with a healthy wallet drains the restored credit.
		amount, payTx, err := f.svc.Withdraw(ctx, id, bidderA)
		if err != nil {
			t.Fatalf("retried Withdraw() err = %v", err)
		}
		if !amount.Equal(decimal.NewFromInt(600)) || payTx == "" {
			t.Errorf("retried Withdraw() = (%s, %s)", amount, payTx)
		}
	})

	t.Run("mined revert restores credit", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(100, time.Hour)
		seedCredit(f, id)
		f.chain.script(transactResult{hash: "0xrev", err: fmt.Errorf("%w: 0xrev", chain.ErrTxReverted)})

		if _, _, err := f.svc.Withdraw(ctx, id, bidderA); !errors.Is(err, models.ErrCurrencyTransferFailed) {
			t.Fatalf("Withdraw() err = %v, want ErrCurrencyTransferFailed", err)
		}
		if got := f.pendingReturn(t, id, bidderA); !got.Equal(decimal.NewFromInt(600)) {
			t.Errorf("pending return = %s, want 600", got)
		}
	})
}

func TestReconcilePayouts(t *testing.T) {
	ctx := context.Background()

	seedSentPayout := func(t *testing.T, f *fixture, id int64, hash string) uuid.UUID {
		t.Helper()
		p := &models.Payout{AuctionID: id, Recipient: bidderA, Amount: decimal.NewFromInt(600)}
		if err := (&fakePayouts{f.state}).Create(ctx, fakeTx{}, p); err != nil {
			t.Fatal(err)
		}
		f.state.mu.Lock()
		f.state.payouts[p.ID].Status = models.PayoutStatusSent
		f.state.payouts[p.ID].TxHash = &hash
		f.state.mu.Unlock()
		return p.ID
	}

	t.Run("mined payout confirms", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(100, time.Hour)
		pid := seedSentPayout(t, f, id, "0xok")
		f.chain.confirms["0xok"] = nil

		n, err := f.svc.ReconcilePayouts(ctx)
		if err != nil || n != 1 {
			t.Fatalf("ReconcilePayouts() = (%d, %v), want (1, nil)", n, err)
		}
		if got := f.state.payouts[pid].Status; got != models.PayoutStatusConfirmed {
			t.Errorf("status = %s, want confirmed", got)
		}
		if got := f.pendingReturn(t, id, bidderA); !got.IsZero() {
			t.Errorf("pending return = %s, want 0", got)
		}
	})

	t.Run("reverted payout credits back once", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(100, time.Hour)
		pid := seedSentPayout(t, f, id, "0xbad")
		f.chain.confirms["0xbad"] = chain.ErrTxReverted

		for i := 0; i < 2; i++ {
			if _, err := f.svc.ReconcilePayouts(ctx); err != nil {
				t.Fatalf("ReconcilePayouts() err = %v", err)
			}
		}
		if got := f.state.payouts[pid].Status; got != models.PayoutStatusFailed {
			t.Errorf("status = %s, want failed", got)
		}
		if got := f.pendingReturn(t, id, bidderA); !got.Equal(decimal.NewFromInt(600)) {
			t.Errorf("pending return = %s, want 600 exactly once", got)
		}
	})

	t.Run("still pending on chain is left alone", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(100, time.Hour)
		pid := seedSentPayout(t, f, id, "0xwait")
		f.chain.confirms["0xwait"] = chain.ErrTxPending

		n, err := f.svc.ReconcilePayouts(ctx)
		if err != nil || n != 0 {
			t.Fatalf("ReconcilePayouts() = (%d, %v), want (0, nil)", n, err)
		}
		if got := f.state.payouts[pid].Status; got != models.PayoutStatusSent {
			t.Errorf("status = %s, want sent", got)
		}
		if got := f.pendingReturn(t, id, bidderA); !got.IsZero() {
			t.Errorf("pending return = %s, want 0", got)
		}
	})

	t.Run("stale pending treated as never sent", func(t *testing.T) {
		f := newFixture(nil)
		id := f.seedNativeAuction(100, time.Hour)
		p := &models.Payout{AuctionID: id, Recipient: bidderA, Amount: decimal.NewFromInt(600)}
		if err := (&fakePayouts{f.state}).Create(ctx, fakeTx{}, p); err != nil {
			t.Fatal(err)
		}
		f.state.mu.Lock()
		f.state.payouts[p.ID].UpdatedAt = time.Now().Add(-time.Hour)
		f.state.mu.Unlock()

		n, err := f.svc.ReconcilePayouts(ctx)
		if err != nil || n != 1 {
			t.Fatalf("ReconcilePayouts() = (%d, %v), want (1, nil)", n, err)
		}
		if got := f.state.payouts[p.ID].Status; got != models.PayoutStatusFailed {
			t.Errorf("status = %s, want failed", got)
		}
		if got := f.pendingReturn(t, id, bidderA); !got.Equal(decimal.NewFromInt(600)) {
			t.Errorf("pending return = %s, want 600", got)
		}
	})
}

func TestSettleReleasesAssetAndPaysSeller(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	id := f.seedNativeAuction(100, time.Hour)
	f.seedDeposit("0xwinner", bidderA, 500)
	if err := f.nativeBid(t, id, bidderA, "0xwinner"); err != nil {
		t.Fatalf("PlaceBid() err = %v", err)
	}
	f.state.mu.Lock()
	f.state.auctions[id].EndTime = time.Now().UTC().Add(-time.Minute)
	f.state.mu.Unlock()

	auction, err := f.svc.Settle(ctx, id, nil, models.ActorTypeSystem)
	if err != nil {
		t.Fatalf("Settle() err = %v", err)
	}
	if auction.Status != models.AuctionStatusSettled {
		t.Errorf("status = %s, want settled", auction.Status)
	}

	escrow := f.state.escrows[id]
	if escrow.Status != models.EscrowStatusReleased {
		t.Errorf("escrow status = %s, want released", escrow.Status)
	}
	if escrow.ReleasedTo == nil || *escrow.ReleasedTo != bidderA {
		t.Errorf("escrow released to %v, want winner", escrow.ReleasedTo)
	}
	if p := f.payoutByRecipient(t, sellerAddr); p.Status != models.PayoutStatusConfirmed || !p.Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("seller payout = (%s, %s), want confirmed 500", p.Status, p.Amount)
	}

	if _, err := f.svc.Settle(ctx, id, nil, models.ActorTypeSystem); !errors.Is(err, models.ErrAlreadySettled) {
		t.Errorf("second Settle() err = %v, want ErrAlreadySettled", err)
	}
}

func TestSettleDefersSellerPayoutOnFailure(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	id := f.seedNativeAuction(100, time.Hour)
	f.seedDeposit("0xwinner", bidderA, 500)
	if err := f.nativeBid(t, id, bidderA, "0xwinner"); err != nil {
		t.Fatalf("PlaceBid() err = %v", err)
	}
	f.state.mu.Lock()
	f.state.auctions[id].EndTime = time.Now().UTC().Add(-time.Minute)
	f.state.mu.Unlock()

	// Asset release succeeds, seller payout definitively fails.
	f.chain.script(
		transactResult{hash: "0xrelease"},
		transactResult{hash: "", err: errors.New("nonce too low")},
	)

	if _, err := f.svc.Settle(ctx, id, nil, models.ActorTypeSystem); err != nil {
		t.Fatalf("Settle() err = %v", err)
	}
	// Proceeds land in the seller's pending return, claimable via Withdraw.
	if got := f.pendingReturn(t, id, sellerAddr); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("seller pending return = %s, want 500", got)
	}
	amount, _, err := f.svc.Withdraw(ctx, id, sellerAddr)
	if err != nil {
		t.Fatalf("seller Withdraw() err = %v", err)
	}
	if !amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("seller Withdraw() amount = %s, want 500", amount)
	}
}

func TestRetryHeldReleasesCountsOnlyReleased(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	id := f.seedNativeAuction(100, time.Hour)
	f.state.mu.Lock()
	f.state.auctions[id].EndTime = time.Now().UTC().Add(-time.Minute)
	f.state.mu.Unlock()

	// No bids: settlement returns the asset to the seller, but the release
	// send fails and the escrow drops back to held.
	f.chain.script(transactResult{hash: "", err: errors.New("rpc unavailable")})
	if _, err := f.svc.Settle(ctx, id, nil, models.ActorTypeSystem); err != nil {
		t.Fatalf("Settle() err = %v", err)
	}
	if got := f.state.escrows[id].Status; got != models.EscrowStatusHeld {
		t.Fatalf("escrow status = %s, want held", got)
	}

	// Chain still down: the sweep must report zero, not one per attempt.
	f.chain.script(transactResult{hash: "", err: errors.New("rpc unavailable")})
	n, err := f.svc.RetryHeldReleases(ctx)
	if err != nil || n != 0 {
		t.Fatalf("RetryHeldReleases() = (%d, %v), want (0, nil)", n, err)
	}
	if got := f.state.escrows[id].Status; got != models.EscrowStatusHeld {
		t.Fatalf("escrow status after failed retry = %s, want held", got)
	}

	// Chain recovers.
	n, err = f.svc.RetryHeldReleases(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RetryHeldReleases() = (%d, %v), want (1, nil)", n, err)
	}
	escrow := f.state.escrows[id]
	if escrow.Status != models.EscrowStatusReleased {
		t.Errorf("escrow status = %s, want released", escrow.Status)
	}
	if escrow.ReleasedTo == nil || *escrow.ReleasedTo != sellerAddr {
		t.Errorf("escrow released to %v, want seller", escrow.ReleasedTo)
	}
}

func TestCreateReserveCheckUsesTokenDecimals(t *testing.T) {
	ctx := context.Background()
	fresh := &models.PriceReading{
		CurrencyKind: models.CurrencyToken,
		PriceUSD:     decimal.NewFromInt(1),
		UpdatedAt:    time.Now().UTC(),
	}

	params := func() CreateAuctionParams {
		contract := tokenAddr
		return CreateAuctionParams{
			Seller:           sellerAddr,
			AssetContract:    assetAddr,
			AssetID:          decimal.NewFromInt(7),
			CurrencyKind:     models.CurrencyToken,
			CurrencyContract: &contract,
			// 2000 whole tokens for a 6-decimal token.
			ReservePrice: decimal.NewFromInt(2_000_000_000),
			Duration:     time.Hour,
		}
	}

	t.Run("six decimal token over cap", func(t *testing.T) {
		f := newFixture(&fakePrice{reading: fresh})
		f.cfg.ReserveCheckEnabled = true
		f.chain.calls["decimals"] = []interface{}{uint8(6)}

		// At $1 per token this is $2000 against a $1000 cap. Valued with a
		// fixed 18-decimal assumption it would be fractions of a cent and
		// slip through.
		_, err := f.svc.Create(ctx, params())
		if !errors.Is(err, models.ErrInvalidConfiguration) {
			t.Fatalf("Create() err = %v, want ErrInvalidConfiguration", err)
		}
	})

	t.Run("eighteen decimal token under cap", func(t *testing.T) {
		f := newFixture(&fakePrice{reading: fresh})
		f.cfg.ReserveCheckEnabled = true
		f.chain.calls["decimals"] = []interface{}{uint8(18)}
		f.chain.calls["ownerOf"] = []interface{}{common.HexToAddress(sellerAddr)}

		auction, err := f.svc.Create(ctx, params())
		if err != nil {
			t.Fatalf("Create() err = %v", err)
		}
		if auction.Status != models.AuctionStatusActive {
			t.Errorf("status = %s, want active", auction.Status)
		}
	})

	t.Run("decimals read failure skips the check", func(t *testing.T) {
		f := newFixture(&fakePrice{reading: fresh})
		f.cfg.ReserveCheckEnabled = true
		f.chain.calls["ownerOf"] = []interface{}{common.HexToAddress(sellerAddr)}
		// No decimals scripted: the read fails and the policy stands aside.

		if _, err := f.svc.Create(ctx, params()); err != nil {
			t.Fatalf("Create() err = %v", err)
		}
	})
}
