package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mx-auction/backend/internal/chain"
	"github.com/mx-auction/backend/internal/config"
	"github.com/mx-auction/backend/internal/events"
	"github.com/mx-auction/backend/internal/models"
	"github.com/mx-auction/backend/internal/repositories"
)

// AuctionService runs the escrow-based auction lifecycle: listing with asset
// deposit, bid acceptance with funds custody, refund withdrawal, and
// settlement. Every state-mutating operation on one auction runs under that
// auction's row lock, so operations on it are totally ordered.
type AuctionService struct {
	cfg       *config.Config
	auctions  AuctionStore
	bids      BidStore
	returns   ReturnLedger
	escrow    EscrowStore
	payouts   PayoutStore
	audit     AuditStore
	chain     chain.Client
	oracle    PriceSource
	publisher events.Publisher
	log       *zap.Logger
}

func NewAuctionService(
	cfg *config.Config,
	auctions AuctionStore,
	bids BidStore,
	returns ReturnLedger,
	escrow EscrowStore,
	payouts PayoutStore,
	audit AuditStore,
	chainClient chain.Client,
	oracle PriceSource,
	publisher events.Publisher,
	log *zap.Logger,
) *AuctionService {
	return &AuctionService{
		cfg:       cfg,
		auctions:  auctions,
		bids:      bids,
		returns:   returns,
		escrow:    escrow,
		payouts:   payouts,
		audit:     audit,
		chain:     chainClient,
		oracle:    oracle,
		publisher: publisher,
		log:       log,
	}
}

type CreateAuctionParams struct {
	Seller           string
	AssetContract    string
	AssetID          decimal.Decimal
	CurrencyKind     string
	CurrencyContract *string
	ReservePrice     decimal.Decimal
	Duration         time.Duration
}

// Create validates the listing, takes custody of the asset and opens the
// auction. The asset deposit happens before any row is written: an auction
// exists only if escrow actually holds its asset.
func (s *AuctionService) Create(ctx context.Context, p CreateAuctionParams) (*models.Auction, error) {
	if err := models.ValidateAuctionConfig(p.CurrencyKind, p.CurrencyContract, p.ReservePrice, p.Duration); err != nil {
		return nil, err
	}
	if p.Duration < s.cfg.MinDuration || p.Duration > s.cfg.MaxDuration {
		return nil, models.ErrInvalidConfiguration
	}
	if !common.IsHexAddress(p.Seller) || !common.IsHexAddress(p.AssetContract) {
		return nil, models.ErrInvalidConfiguration
	}
	if p.CurrencyContract != nil && !common.IsHexAddress(*p.CurrencyContract) {
		return nil, models.ErrInvalidConfiguration
	}

	if err := s.checkReservePolicy(ctx, p); err != nil {
		return nil, err
	}

	seller := common.HexToAddress(p.Seller)
	nft := chain.NewErc721(s.chain, common.HexToAddress(p.AssetContract))
	tokenID := p.AssetID.BigInt()

	owner, err := nft.OwnerOf(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("verify asset owner: %w", err)
	}
	if owner != seller {
		return nil, models.ErrUnauthorized
	}

	depositTx, err := nft.TransferFrom(ctx, seller, s.chain.Operator(), tokenID)
	if err != nil {
		s.log.Warn("asset deposit failed",
			zap.String("seller", p.Seller),
			zap.String("asset_contract", p.AssetContract),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", models.ErrAssetTransferFailed, err)
	}

	now := time.Now().UTC()
	auction := &models.Auction{
		Seller:           seller.Hex(),
		AssetContract:    common.HexToAddress(p.AssetContract).Hex(),
		AssetID:          p.AssetID,
		CurrencyKind:     p.CurrencyKind,
		CurrencyContract: p.CurrencyContract,
		ReservePrice:     p.ReservePrice,
		StartTime:        now,
		EndTime:          now.Add(p.Duration),
		HighestBid:       decimal.Zero,
		Status:           models.AuctionStatusActive,
	}

	tx, err := s.auctions.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.auctions.Create(ctx, tx, auction); err != nil {
		// The asset is already at the operator wallet; surface loudly so it
		// can be returned by hand.
		s.log.Error("auction insert failed after asset deposit",
			zap.String("deposit_tx", depositTx),
			zap.String("seller", auction.Seller),
			zap.Error(err),
		)
		return nil, err
	}
	if err := s.escrow.Create(ctx, tx, &models.EscrowedAsset{
		AuctionID:     auction.ID,
		AssetContract: auction.AssetContract,
		AssetID:       auction.AssetID,
		DepositTxHash: depositTx,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.auditLog(ctx, &auction.Seller, models.ActorTypeUser, "auction_created", &auction.ID, map[string]any{
		"asset_contract": auction.AssetContract,
		"asset_id":       auction.AssetID.String(),
		"reserve_price":  auction.ReservePrice.String(),
		"deposit_tx":     depositTx,
	})
	s.publish(ctx, events.EventAuctionCreated, map[string]any{
		"auction_id": auction.ID,
		"seller":     auction.Seller,
		"end_time":   auction.EndTime,
	})

	s.log.Info("auction created",
		zap.Int64("auction_id", auction.ID),
		zap.String("seller", auction.Seller),
		zap.String("currency_kind", auction.CurrencyKind),
		zap.Time("end_time", auction.EndTime),
	)
	return auction, nil
}

// checkReservePolicy is an optional oracle sanity check on reserve prices.
// It only ever rejects when a feed is bound and fresh; a missing or stale
// feed never blocks listing.
func (s *AuctionService) checkReservePolicy(ctx context.Context, p CreateAuctionParams) error {
	if !s.cfg.ReserveCheckEnabled {
		return nil
	}
	reading, err := s.oracle.Read(ctx, p.CurrencyKind)
	if err != nil {
		if errors.Is(err, models.ErrNoPriceFeed) {
			return nil
		}
		s.log.Warn("reserve check skipped, oracle read failed", zap.Error(err))
		return nil
	}
	if reading.Stale {
		return nil
	}

	decimals := int32(18)
	if p.CurrencyKind == models.CurrencyToken {
		d, err := chain.NewErc20(s.chain, common.HexToAddress(*p.CurrencyContract)).Decimals(ctx)
		if err != nil {
			s.log.Warn("reserve check skipped, token decimals unavailable",
				zap.String("currency_contract", *p.CurrencyContract),
				zap.Error(err),
			)
			return nil
		}
		decimals = int32(d)
	}

	usd := p.ReservePrice.Shift(-decimals).Mul(reading.PriceUSD)
	if usd.GreaterThan(decimal.NewFromFloat(s.cfg.ReserveMaxUSD)) {
		return models.ErrInvalidConfiguration
	}
	return nil
}

type PlaceBidParams struct {
	AuctionID int64
	Bidder    string
	// Amount is the bid for token-denominated auctions; ignored for native
	// auctions, where the verified deposit value is the bid.
	Amount decimal.Decimal
	// FundingTxHash is the bidder's value transfer to the operator wallet,
	// required for native auctions.
	FundingTxHash *string
}

// PlaceBid accepts a bid. For native auctions the bid amount is the value of
// the funding transaction, verified on-chain; for token auctions the amount
// is pulled from the bidder's pre-approved allowance. The displaced leader,
// if any, is credited in the pending-return ledger in the same transaction.
//
// A verified native deposit whose bid is then rejected is not lost: the
// value already sits at the operator wallet, so it is converted into a
// pending-return credit claimable through the ordinary withdraw path.
func (s *AuctionService) PlaceBid(ctx context.Context, p PlaceBidParams) (*models.Bid, error) {
	if !common.IsHexAddress(p.Bidder) {
		return nil, models.ErrInvalidConfiguration
	}
	bidder := common.HexToAddress(p.Bidder)

	tx, err := s.auctions.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	auction, err := s.auctions.GetByIDForUpdate(ctx, tx, p.AuctionID)
	if err != nil {
		return nil, err
	}

	amount := p.Amount
	if auction.IsNative() {
		if p.FundingTxHash == nil || *p.FundingTxHash == "" {
			return nil, models.ErrInvalidConfiguration
		}
		transfer, err := s.chain.NativeTransfer(ctx, *p.FundingTxHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrCurrencyTransferFailed, err)
		}
		if transfer.To != s.chain.Operator() || transfer.From != bidder {
			return nil, models.ErrCurrencyTransferFailed
		}
		amount = decimal.NewFromBigInt(transfer.Value, 0)
	}

	now := time.Now().UTC()
	displaced, err := auction.ApplyBid(bidder.Hex(), amount, now)
	if err != nil {
		if auction.IsNative() {
			return nil, s.creditRejectedDeposit(ctx, tx, auction.ID, bidder.Hex(), *p.FundingTxHash, amount, err)
		}
		return nil, err
	}

	bid := &models.Bid{
		AuctionID: auction.ID,
		Bidder:    bidder.Hex(),
		Amount:    amount,
	}
	if auction.IsNative() {
		bid.FundingTxHash = p.FundingTxHash
	} else {
		// Token funds are pulled while the auction row is locked, so the bid
		// is recorded if and only if the pull succeeded.
		currency := chain.NewErc20(s.chain, common.HexToAddress(*auction.CurrencyContract))
		pullTx, err := currency.TransferFrom(ctx, bidder, s.chain.Operator(), amount.BigInt())
		if err != nil {
			s.log.Warn("bid funds pull failed",
				zap.Int64("auction_id", auction.ID),
				zap.String("bidder", bid.Bidder),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %v", models.ErrCurrencyTransferFailed, err)
		}
		bid.FundingTxHash = &pullTx
	}

	if err := s.bids.Create(ctx, tx, bid); err != nil {
		return nil, err
	}
	if displaced != nil {
		if err := s.returns.Increase(ctx, tx, auction.ID, displaced.Bidder, displaced.Amount); err != nil {
			return nil, err
		}
	}
	if err := s.auctions.UpdateHighestBid(ctx, tx, auction.ID, bid.Bidder, bid.Amount); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.auditLog(ctx, &bid.Bidder, models.ActorTypeUser, "bid_placed", &auction.ID, map[string]any{
		"amount": bid.Amount.String(),
	})
	s.publish(ctx, events.EventBidPlaced, map[string]any{
		"auction_id": auction.ID,
		"bidder":     bid.Bidder,
		"amount":     bid.Amount.String(),
	})
	if displaced != nil {
		s.publish(ctx, events.EventBidOutbid, map[string]any{
			"auction_id": auction.ID,
			"bidder":     displaced.Bidder,
			"amount":     displaced.Amount.String(),
		})
	}

	s.log.Info("bid accepted",
		zap.Int64("auction_id", auction.ID),
		zap.String("bidder", bid.Bidder),
		zap.String("amount", bid.Amount.String()),
	)
	return bid, nil
}

// creditRejectedDeposit converts a verified native deposit into a
// pending-return credit after its bid was rejected. The caller's open
// transaction still holds the auction row lock; committing here makes the
// credit durable while the bid itself stays rejected. Returns the error the
// caller should surface.
func (s *AuctionService) creditRejectedDeposit(ctx context.Context, tx pgx.Tx, auctionID int64, bidder, txHash string, amount decimal.Decimal, rejection error) error {
	if err := s.returns.CreditFundingTx(ctx, tx, auctionID, bidder, txHash, amount); err != nil {
		if errors.Is(err, models.ErrFundingTxUsed) {
			return err
		}
		s.log.Error("rejected deposit not credited",
			zap.Int64("auction_id", auctionID),
			zap.String("bidder", bidder),
			zap.String("funding_tx", txHash),
			zap.Error(err),
		)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.auditLog(ctx, &bidder, models.ActorTypeSystem, "deposit_credited", &auctionID, map[string]any{
		"amount":     amount.String(),
		"funding_tx": txHash,
		"reason":     rejection.Error(),
	})
	s.publish(ctx, events.EventBidOutbid, map[string]any{
		"auction_id": auctionID,
		"bidder":     bidder,
		"amount":     amount.String(),
	})

	s.log.Info("rejected native deposit credited to pending returns",
		zap.Int64("auction_id", auctionID),
		zap.String("bidder", bidder),
		zap.String("amount", amount.String()),
	)
	return rejection
}

// Withdraw pays out the caller's accumulated pending return for an auction.
// The ledger debit and a payout-intent row commit together before anything
// is broadcast; the on-chain send happens outside the transaction and its
// outcome resolves the intent. A definite send failure credits the amount
// back; an unknown outcome is left for the worker to reconcile against the
// receipt, so the credit can never be paid twice.
func (s *AuctionService) Withdraw(ctx context.Context, auctionID int64, caller string) (decimal.Decimal, string, error) {
	if !common.IsHexAddress(caller) {
		return decimal.Zero, "", models.ErrInvalidConfiguration
	}
	recipient := common.HexToAddress(caller)

	tx, err := s.auctions.Begin(ctx)
	if err != nil {
		return decimal.Zero, "", err
	}
	defer tx.Rollback(ctx)

	auction, err := s.auctions.GetByIDForUpdate(ctx, tx, auctionID)
	if err != nil {
		return decimal.Zero, "", err
	}

	amount, err := s.returns.TakeAll(ctx, tx, auctionID, recipient.Hex())
	if err != nil {
		return decimal.Zero, "", err
	}

	payout := &models.Payout{
		AuctionID: auctionID,
		Recipient: recipient.Hex(),
		Amount:    amount,
	}
	if err := s.payouts.Create(ctx, tx, payout); err != nil {
		return decimal.Zero, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, "", err
	}

	payTx, err := s.sendPayout(ctx, auction, payout)
	if err != nil {
		return decimal.Zero, "", err
	}

	addr := recipient.Hex()
	s.auditLog(ctx, &addr, models.ActorTypeUser, "refund_withdrawn", &auctionID, map[string]any{
		"amount":    amount.String(),
		"payout_tx": payTx,
	})
	s.publish(ctx, events.EventRefundWithdrawn, map[string]any{
		"auction_id": auctionID,
		"bidder":     addr,
		"amount":     amount.String(),
	})
	return amount, payTx, nil
}

// sendPayout broadcasts a committed payout intent and resolves it. Definite
// failures (never broadcast, or mined-and-reverted) flip the intent to
// failed and credit the amount back to the recipient's pending return.
// Unknown outcomes keep the intent in sent for worker reconciliation and are
// reported as success, since the transfer is in flight.
func (s *AuctionService) sendPayout(ctx context.Context, auction *models.Auction, payout *models.Payout) (string, error) {
	hash, err := s.payOut(ctx, auction, common.HexToAddress(payout.Recipient), payout.Amount)
	if err == nil {
		if markErr := s.payouts.MarkConfirmed(ctx, payout.ID, hash); markErr != nil {
			s.log.Error("payout confirmation not recorded", zap.String("payout_id", payout.ID.String()), zap.Error(markErr))
		}
		return hash, nil
	}

	if errors.Is(err, chain.ErrTxOutcomeUnknown) {
		s.log.Warn("payout outcome unknown, left for reconciliation",
			zap.Int64("auction_id", payout.AuctionID),
			zap.String("recipient", payout.Recipient),
			zap.String("tx_hash", hash),
			zap.Error(err),
		)
		if markErr := s.payouts.MarkSent(ctx, payout.ID, hash); markErr != nil {
			s.log.Error("payout send not recorded", zap.String("payout_id", payout.ID.String()), zap.Error(markErr))
		}
		return hash, nil
	}

	s.log.Warn("payout failed, crediting back",
		zap.Int64("auction_id", payout.AuctionID),
		zap.String("recipient", payout.Recipient),
		zap.String("amount", payout.Amount.String()),
		zap.Error(err),
	)
	s.failPayout(ctx, payout)
	return "", fmt.Errorf("%w: %v", models.ErrCurrencyTransferFailed, err)
}

// failPayout resolves an unresolved intent as failed and restores the amount
// to the recipient's pending return. The guarded status flip makes the
// credit happen at most once even when settlement and the worker race.
func (s *AuctionService) failPayout(ctx context.Context, payout *models.Payout) {
	flipped, err := s.payouts.MarkFailed(ctx, payout.ID)
	if err != nil {
		s.log.Error("payout failure not recorded", zap.String("payout_id", payout.ID.String()), zap.Error(err))
		return
	}
	if !flipped {
		return
	}

	tx, err := s.auctions.Begin(ctx)
	if err != nil {
		s.log.Error("payout credit-back failed", zap.String("payout_id", payout.ID.String()), zap.Error(err))
		return
	}
	defer tx.Rollback(ctx)
	if err := s.returns.Increase(ctx, tx, payout.AuctionID, payout.Recipient, payout.Amount); err != nil {
		s.log.Error("payout credit-back failed", zap.String("payout_id", payout.ID.String()), zap.Error(err))
		return
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Error("payout credit-back failed", zap.String("payout_id", payout.ID.String()), zap.Error(err))
	}
}

// Settle closes an auction after its window has passed. The Settled status
// commits before any funds or assets move, so a crash mid-settlement never
// reopens bidding; the asset release and seller payout are each guarded to
// happen at most once, with failure paths that defer rather than retry
// inline.
func (s *AuctionService) Settle(ctx context.Context, auctionID int64, actor *string, actorType string) (*models.Auction, error) {
	tx, err := s.auctions.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	auction, err := s.auctions.GetByIDForUpdate(ctx, tx, auctionID)
	if err != nil {
		return nil, err
	}
	if err := auction.CanSettle(time.Now().UTC()); err != nil {
		return nil, err
	}

	ok, err := s.auctions.MarkSettled(ctx, tx, auctionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrAlreadySettled
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	auction.Status = models.AuctionStatusSettled

	plan := auction.Settlement()
	s.releaseAsset(ctx, auction, plan.AssetRecipient)

	if plan.PaySeller {
		s.paySeller(ctx, auction, plan.Proceeds)
	}

	s.auditLog(ctx, actor, actorType, "auction_settled", &auctionID, map[string]any{
		"winner":   auction.HighestBidder,
		"proceeds": plan.Proceeds.String(),
	})
	s.publish(ctx, events.EventAuctionSettled, map[string]any{
		"auction_id": auctionID,
		"winner":     auction.HighestBidder,
		"amount":     auction.HighestBid.String(),
	})

	s.log.Info("auction settled",
		zap.Int64("auction_id", auctionID),
		zap.Bool("had_winner", plan.PaySeller),
	)
	return auction, nil
}

// releaseAsset moves the escrowed asset to its recipient at most once,
// reporting whether the release actually happened. On send failure the
// escrow flips back to held and the worker retries.
func (s *AuctionService) releaseAsset(ctx context.Context, auction *models.Auction, recipient string) bool {
	claimed, err := s.escrow.ClaimRelease(ctx, auction.ID)
	if err != nil {
		s.log.Error("escrow claim failed", zap.Int64("auction_id", auction.ID), zap.Error(err))
		return false
	}
	if !claimed {
		return false
	}

	nft := chain.NewErc721(s.chain, common.HexToAddress(auction.AssetContract))
	releaseTx, err := nft.TransferFrom(ctx, s.chain.Operator(), common.HexToAddress(recipient), auction.AssetID.BigInt())
	if err != nil {
		s.log.Warn("asset release failed, will retry",
			zap.Int64("auction_id", auction.ID),
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		if rbErr := s.escrow.ReleaseFailed(ctx, auction.ID); rbErr != nil {
			s.log.Error("escrow unclaim failed", zap.Int64("auction_id", auction.ID), zap.Error(rbErr))
		}
		return false
	}

	if err := s.escrow.MarkReleased(ctx, auction.ID, recipient, releaseTx); err != nil {
		s.log.Error("escrow release not recorded",
			zap.Int64("auction_id", auction.ID),
			zap.String("release_tx", releaseTx),
			zap.Error(err),
		)
		return false
	}
	s.publish(ctx, events.EventAssetReleased, map[string]any{
		"auction_id": auction.ID,
		"recipient":  recipient,
		"tx_hash":    releaseTx,
	})
	return true
}

// paySeller sends auction proceeds through the payout-intent path. A
// definite send failure lands the amount in the seller's pending return,
// claimable through the ordinary withdraw path; settlement never unwinds
// over a payout.
func (s *AuctionService) paySeller(ctx context.Context, auction *models.Auction, proceeds decimal.Decimal) {
	payout := &models.Payout{
		AuctionID: auction.ID,
		Recipient: auction.Seller,
		Amount:    proceeds,
	}

	tx, err := s.auctions.Begin(ctx)
	if err != nil {
		s.log.Error("seller payout intent failed", zap.Int64("auction_id", auction.ID), zap.Error(err))
		return
	}
	defer tx.Rollback(ctx)
	if err := s.payouts.Create(ctx, tx, payout); err != nil {
		s.log.Error("seller payout intent failed", zap.Int64("auction_id", auction.ID), zap.Error(err))
		return
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Error("seller payout intent failed", zap.Int64("auction_id", auction.ID), zap.Error(err))
		return
	}

	payTx, err := s.sendPayout(ctx, auction, payout)
	if err != nil {
		// Amount is already credited to the seller's pending return.
		s.publish(ctx, events.EventPayoutDeferred, map[string]any{
			"auction_id": auction.ID,
			"seller":     auction.Seller,
			"amount":     proceeds.String(),
		})
		return
	}

	s.auditLog(ctx, nil, models.ActorTypeSystem, "seller_paid", &auction.ID, map[string]any{
		"amount":    proceeds.String(),
		"payout_tx": payTx,
	})
}

// payOut sends auction-denominated funds from the operator wallet.
func (s *AuctionService) payOut(ctx context.Context, auction *models.Auction, to common.Address, amount decimal.Decimal) (string, error) {
	if auction.IsNative() {
		return s.chain.Transact(ctx, to, amount.BigInt(), nil)
	}
	currency := chain.NewErc20(s.chain, common.HexToAddress(*auction.CurrencyContract))
	return currency.Transfer(ctx, to, amount.BigInt())
}

// SettleExpired sweeps active auctions whose window has closed. Used by the
// worker; individual failures are logged and do not stop the sweep.
func (s *AuctionService) SettleExpired(ctx context.Context) (int, error) {
	expired, err := s.auctions.GetExpiredActive(ctx, 50)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, a := range expired {
		if _, err := s.Settle(ctx, a.ID, nil, models.ActorTypeSystem); err != nil {
			if errors.Is(err, models.ErrAlreadySettled) {
				continue
			}
			s.log.Error("sweep settle failed", zap.Int64("auction_id", a.ID), zap.Error(err))
			continue
		}
		settled++
	}
	return settled, nil
}

// RetryHeldReleases re-attempts asset releases that failed at settlement
// time, returning how many assets actually moved.
func (s *AuctionService) RetryHeldReleases(ctx context.Context) (int, error) {
	held, err := s.escrow.GetHeldForSettled(ctx, 50)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, e := range held {
		auction, err := s.auctions.GetByID(ctx, e.AuctionID)
		if err != nil {
			s.log.Error("release retry load failed", zap.Int64("auction_id", e.AuctionID), zap.Error(err))
			continue
		}
		plan := auction.Settlement()
		if s.releaseAsset(ctx, auction, plan.AssetRecipient) {
			released++
		}
	}
	return released, nil
}

// ReconcilePayouts resolves payout intents whose outcome was unknown when
// they were sent: confirmed receipts close them, reverted ones credit the
// amount back, and pending intents old enough that the process must have
// died before broadcasting are treated as never sent.
func (s *AuctionService) ReconcilePayouts(ctx context.Context) (int, error) {
	unresolved, err := s.payouts.GetUnresolved(ctx, s.cfg.PayoutStaleAfter, 50)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for i := range unresolved {
		payout := &unresolved[i]

		if payout.Status == models.PayoutStatusPending || payout.TxHash == nil {
			s.failPayout(ctx, payout)
			resolved++
			continue
		}

		switch err := s.chain.ConfirmTx(ctx, *payout.TxHash); {
		case err == nil:
			if markErr := s.payouts.MarkConfirmed(ctx, payout.ID, *payout.TxHash); markErr != nil {
				s.log.Error("payout confirmation not recorded", zap.String("payout_id", payout.ID.String()), zap.Error(markErr))
				continue
			}
			resolved++
		case errors.Is(err, chain.ErrTxReverted), errors.Is(err, chain.ErrTxNotFound):
			s.failPayout(ctx, payout)
			resolved++
		case errors.Is(err, chain.ErrTxPending):
			// Still in flight; check again next sweep.
		default:
			s.log.Warn("payout reconciliation read failed",
				zap.String("payout_id", payout.ID.String()),
				zap.Error(err),
			)
		}
	}
	return resolved, nil
}

func (s *AuctionService) GetAuction(ctx context.Context, id int64) (*models.Auction, error) {
	return s.auctions.GetByID(ctx, id)
}

func (s *AuctionService) ListAuctions(ctx context.Context, f repositories.AuctionFilter) ([]models.Auction, error) {
	return s.auctions.List(ctx, f)
}

func (s *AuctionService) ListBids(ctx context.Context, auctionID int64, limit int) ([]models.Bid, error) {
	return s.bids.ListByAuction(ctx, auctionID, limit)
}

func (s *AuctionService) PendingReturnOf(ctx context.Context, auctionID int64, bidder string) (decimal.Decimal, error) {
	return s.returns.Peek(ctx, auctionID, common.HexToAddress(bidder).Hex())
}

func (s *AuctionService) PendingReturnsOf(ctx context.Context, bidder string) ([]models.PendingReturn, error) {
	return s.returns.ListByBidder(ctx, common.HexToAddress(bidder).Hex())
}

func (s *AuctionService) GetEscrow(ctx context.Context, auctionID int64) (*models.EscrowedAsset, error) {
	return s.escrow.GetByAuctionID(ctx, auctionID)
}

func (s *AuctionService) AuditTrail(ctx context.Context, auctionID int64, limit int) ([]models.AuditLog, error) {
	return s.audit.GetByAuction(ctx, auctionID, limit)
}

func (s *AuctionService) auditLog(ctx context.Context, actor *string, actorType, action string, auctionID *int64, meta map[string]any) {
	if err := s.audit.Log(ctx, &models.AuditLog{
		Actor:     actor,
		ActorType: actorType,
		Action:    action,
		AuctionID: auctionID,
		Meta:      meta,
	}); err != nil {
		s.log.Error("failed to write audit entry", zap.String("action", action), zap.Error(err))
	}
}

func (s *AuctionService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if err := s.publisher.Publish(ctx, events.StreamAuction, events.Event{Type: eventType, Payload: payload}); err != nil {
		s.log.Error("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
