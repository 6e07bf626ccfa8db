package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/digimart/internal/audit/domain"
	"github.com/smallbiznis/digimart/internal/audit/masking"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	"github.com/smallbiznis/digimart/internal/inventory/domain"
	"github.com/smallbiznis/digimart/internal/inventory/sealer"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// claimRounds bounds how often Allocate re-lists a pool after losing claims
// to a concurrent allocation.
const claimRounds = 3

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Platform config.PlatformSource
	Repo     domain.Repository
	Products catalogdomain.Repository
	Sealer   *sealer.Sealer
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	platform config.PlatformSource
	repo     domain.Repository
	products catalogdomain.Repository
	sealer   *sealer.Sealer
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("inventory.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		platform: p.Platform,
		repo:     p.Repo,
		products: p.Products,
		sealer:   p.Sealer,
		auditSvc: p.AuditSvc,
	}
}

// Available counts sellable units across the code and account pools.
func (s *Service) Available(ctx context.Context, productID snowflake.ID) (int64, error) {
	codes, err := s.repo.CountAvailableCodes(ctx, s.db, productID)
	if err != nil {
		return 0, err
	}
	profiles, err := s.repo.SumAvailableProfiles(ctx, s.db, productID)
	if err != nil {
		return 0, err
	}
	return codes + profiles, nil
}

// Allocate claims req.Quantity units oldest-first. Codes are used before account
// profiles. A shortfall returns ErrAllocationShortfall and the caller must roll
// back tx.
func (s *Service) Allocate(ctx context.Context, tx *gorm.DB, req domain.AllocationRequest) (domain.Allocation, error) {
	var out domain.Allocation
	if req.Quantity <= 0 {
		return out, nil
	}
	now := s.clock.Now()
	remaining := req.Quantity

	for round := 0; round < claimRounds && remaining > 0; round++ {
		ids, err := s.repo.ListAvailableCodeIDs(ctx, tx, req.ProductID, remaining)
		if err != nil {
			return out, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			ok, err := s.repo.ClaimCode(ctx, tx, id, req, now)
			if err != nil {
				return out, err
			}
			if ok {
				out.CodeIDs = append(out.CodeIDs, id)
				remaining--
			}
		}
	}

	for round := 0; round < claimRounds && remaining > 0; round++ {
		accounts, err := s.repo.ListAvailableAccounts(ctx, tx, req.ProductID, remaining)
		if err != nil {
			return out, err
		}
		if len(accounts) == 0 {
			break
		}
		for _, account := range accounts {
			for remaining > 0 {
				profileNo, ok, err := s.repo.ClaimProfile(ctx, tx, account.ID, now)
				if err != nil {
					return out, err
				}
				if !ok {
					break
				}
				sale := domain.AccountProfileSale{
					ID:          s.genID.Generate(),
					AccountID:   account.ID,
					ProductID:   req.ProductID,
					OrderID:     req.OrderID,
					OrderItemID: req.OrderItemID,
					BuyerID:     req.BuyerID,
					ProfileNo:   profileNo,
					Status:      domain.UnitStatusSold,
					CreatedAt:   now,
				}
				if err := s.repo.InsertProfileSale(ctx, tx, &sale); err != nil {
					return out, err
				}
				out.Profiles = append(out.Profiles, sale)
				remaining--
			}
			if remaining == 0 {
				break
			}
		}
	}

	if remaining > 0 {
		return out, fmt.Errorf("%w: product %s short by %d of %d", domain.ErrAllocationShortfall, req.ProductID, remaining, req.Quantity)
	}
	return out, nil
}

func (s *Service) SuspendForOrder(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (int64, error) {
	return s.repo.SuspendForOrder(ctx, tx, orderID, s.clock.Now())
}

func (s *Service) UploadCodes(ctx context.Context, req domain.UploadCodesRequest) (domain.UploadResult, error) {
	var result domain.UploadResult

	codes := normalizeCodes(req.Codes)
	if len(codes) == 0 {
		return result, domain.ErrEmptyUpload
	}
	limits := s.platform.Get().Inventory
	if len(codes) > limits.MaxCodesPerUpload {
		return result, domain.ErrUploadTooLarge
	}
	if err := s.ensureOwner(ctx, req.SellerID, req.ProductID); err != nil {
		return result, err
	}

	existing, err := s.repo.ExistingCodes(ctx, s.db, req.ProductID, codes)
	if err != nil {
		return result, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, code := range existing {
		seen[code] = struct{}{}
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, code := range codes {
			if _, ok := seen[code]; ok {
				continue
			}
			inserted, err := s.repo.InsertCode(ctx, tx, &domain.ProductCode{
				ID:        s.genID.Generate(),
				ProductID: req.ProductID,
				Code:      code,
				Status:    domain.UnitStatusAvailable,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				return err
			}
			if inserted {
				result.Added++
			}
		}
		return nil
	})
	if err != nil {
		return domain.UploadResult{}, err
	}

	result.Duplicates = countNonEmpty(req.Codes) - result.Added
	s.auditUpload(ctx, req.SellerID, req.ProductID, map[string]any{
		"kind":       "codes",
		"added":      result.Added,
		"duplicates": result.Duplicates,
	})
	s.log.Info("codes uploaded",
		zap.String("product_id", req.ProductID.String()),
		zap.String("seller_id", req.SellerID.String()),
		zap.Int("added", result.Added),
		zap.Int("duplicates", result.Duplicates),
	)
	return result, nil
}

func (s *Service) UploadAccounts(ctx context.Context, req domain.UploadAccountsRequest) (domain.UploadResult, error) {
	var result domain.UploadResult
	if len(req.Accounts) == 0 {
		return result, domain.ErrEmptyUpload
	}
	limits := s.platform.Get().Inventory
	if len(req.Accounts) > limits.MaxAccountsPerUpload {
		return result, domain.ErrUploadTooLarge
	}

	inputs := make([]domain.AccountInput, 0, len(req.Accounts))
	seen := make(map[string]struct{}, len(req.Accounts))
	for _, in := range req.Accounts {
		in.Email = strings.TrimSpace(in.Email)
		if in.MaxProfiles == 0 {
			in.MaxProfiles = 1
		}
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return result, fmt.Errorf("%w: email %q", domain.ErrInvalidAccount, in.Email)
		}
		if in.Password == "" {
			return result, fmt.Errorf("%w: missing password for %q", domain.ErrInvalidAccount, in.Email)
		}
		if in.MaxProfiles < 1 || in.MaxProfiles > limits.MaxProfilesPerAccount {
			return result, fmt.Errorf("%w: max_profiles must be between 1 and %d", domain.ErrInvalidAccount, limits.MaxProfilesPerAccount)
		}
		key := strings.ToLower(in.Email)
		if _, dup := seen[key]; dup {
			result.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		inputs = append(inputs, in)
	}

	if err := s.ensureOwner(ctx, req.SellerID, req.ProductID); err != nil {
		return domain.UploadResult{}, err
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, in := range inputs {
			sealed, err := s.sealer.Seal(in.Password)
			if err != nil {
				return err
			}
			account := domain.ProductAccount{
				ID:             s.genID.Generate(),
				ProductID:      req.ProductID,
				Email:          in.Email,
				SealedPassword: sealed,
				MaxProfiles:    in.MaxProfiles,
				Status:         domain.UnitStatusAvailable,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.repo.InsertAccount(ctx, tx, &account); err != nil {
				return err
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		return domain.UploadResult{}, err
	}

	emails := make([]any, 0, len(inputs))
	for _, in := range inputs {
		emails = append(emails, masking.MaskEmail(in.Email))
	}
	s.auditUpload(ctx, req.SellerID, req.ProductID, map[string]any{
		"kind":   "accounts",
		"added":  result.Added,
		"emails": emails,
	})
	s.log.Info("accounts uploaded",
		zap.String("product_id", req.ProductID.String()),
		zap.String("seller_id", req.SellerID.String()),
		zap.Int("added", result.Added),
	)
	return result, nil
}

// DeliveredUnits lists the codes and unsealed account credentials sold to an order.
func (s *Service) DeliveredUnits(ctx context.Context, orderID snowflake.ID) ([]domain.DeliveredUnit, error) {
	codes, err := s.repo.ListCodesByOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.repo.ListProfileSalesByOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	units := make([]domain.DeliveredUnit, 0, len(codes)+len(profiles))
	for _, code := range codes {
		unit := domain.DeliveredUnit{Code: code.Code, Status: code.Status}
		if code.OrderItemID != nil {
			unit.OrderItemID = *code.OrderItemID
		}
		units = append(units, unit)
	}
	if len(profiles) == 0 {
		return units, nil
	}

	accountIDs := make([]snowflake.ID, 0, len(profiles))
	for _, p := range profiles {
		accountIDs = append(accountIDs, p.AccountID)
	}
	accounts, err := s.repo.FindAccounts(ctx, s.db, accountIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]domain.ProductAccount, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	for _, p := range profiles {
		account, ok := byID[p.AccountID]
		if !ok {
			continue
		}
		unit := domain.DeliveredUnit{
			OrderItemID: p.OrderItemID,
			Email:       account.Email,
			ProfileNo:   p.ProfileNo,
			Status:      p.Status,
		}
		if p.Status == domain.UnitStatusSold {
			password, err := s.sealer.Open(account.SealedPassword)
			if err != nil {
				s.log.Error("failed to unseal account password",
					zap.String("account_id", account.ID.String()),
					zap.Error(err),
				)
				return nil, err
			}
			unit.Password = password
		}
		units = append(units, unit)
	}
	return units, nil
}

func (s *Service) auditUpload(ctx context.Context, sellerID, productID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		ActorType:  string(auditdomain.ActorTypeUser),
		ActorID:    sellerID.String(),
		Action:     auditdomain.ActionInventoryUpload,
		TargetType: "product",
		TargetID:   productID.String(),
		Metadata:   metadata,
	})
	if err != nil {
		s.log.Warn("inventory upload audit failed", zap.String("product_id", productID.String()), zap.Error(err))
	}
}

func (s *Service) ensureOwner(ctx context.Context, sellerID, productID snowflake.ID) error {
	product, err := s.products.FindByID(ctx, s.db, productID)
	if err != nil {
		return err
	}
	if product == nil || product.DeletedAt != nil {
		return domain.ErrProductNotFound
	}
	if product.SellerID != sellerID {
		return domain.ErrNotProductOwner
	}
	if !product.DeliveryType.IsInstant() {
		return domain.ErrProductNotInstant
	}
	return nil
}

func normalizeCodes(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, code := range raw {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

func countNonEmpty(raw []string) int {
	n := 0
	for _, code := range raw {
		if strings.TrimSpace(code) != "" {
			n++
		}
	}
	return n
}
