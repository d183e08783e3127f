package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"copytrade/internal/auth"
	"copytrade/internal/db"
	"copytrade/internal/logger"
	"copytrade/internal/models"
	"copytrade/internal/referral"
	"copytrade/internal/store"
	"copytrade/internal/validator"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// maxCodeAttempts bounds the search for an unused invitation code.
const maxCodeAttempts = 100

var errCodeExhausted = errors.New("could not allocate a unique referral code")

type AccountUserStore interface {
	Create(ctx context.Context, tx store.Getter, input store.NewUser) (int64, error)
	GetByPhone(ctx context.Context, phone string) (models.User, error)
	IDByReferralCode(ctx context.Context, code string) (int64, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
}

type AdminBootstrapStore interface {
	HasAnyAdmin(ctx context.Context) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID int64, isSuper bool, createdBy *int64) error
}

type AccountService struct {
	txRunner db.TxRunner
	users    AccountUserStore
	admins   AdminBootstrapStore
	audit    AuditStore
	newCode  func() (string, error)
}

func NewAccountService(txRunner db.TxRunner, users AccountUserStore, admins AdminBootstrapStore, audit AuditStore) *AccountService {
	return &AccountService{
		txRunner: txRunner,
		users:    users,
		admins:   admins,
		audit:    audit,
		newCode:  referral.NewCode,
	}
}

type RegisterRequest struct {
	PhoneNumber  string
	Password     string
	ReferralCode string
	IP           string
	UserAgent    string
}

type RegisterResult struct {
	UserID       int64
	ReferralCode string
	InvitedBy    *int64
	SuperAdmin   bool
}

// Register creates a user, links it to its inviter when a code is given and
// makes the very first user a super admin.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	phone := strings.TrimSpace(req.PhoneNumber)
	if err := validator.ValidatePhone(phone); err != nil {
		return RegisterResult{}, invalid(err)
	}
	if err := validator.ValidatePassword(req.Password); err != nil {
		return RegisterResult{}, invalid(err)
	}
	var invitedBy *int64
	if strings.TrimSpace(req.ReferralCode) != "" {
		code, err := validator.NormalizeReferralCode(req.ReferralCode)
		if err != nil {
			return RegisterResult{}, ErrReferralCode
		}
		inviterID, err := s.users.IDByReferralCode(ctx, code)
		if err != nil {
			if store.IsNotFound(err) {
				return RegisterResult{}, ErrReferralCode
			}
			return RegisterResult{}, err
		}
		invitedBy = &inviterID
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return RegisterResult{}, err
	}
	code, err := s.allocateCode(ctx)
	if err != nil {
		return RegisterResult{}, err
	}
	hasAdmin, err := s.admins.HasAnyAdmin(ctx)
	if err != nil {
		return RegisterResult{}, err
	}

	result := RegisterResult{ReferralCode: code, InvitedBy: invitedBy, SuperAdmin: !hasAdmin}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		userID, err := s.users.Create(ctx, tx, store.NewUser{
			PhoneNumber:  phone,
			PasswordHash: passwordHash,
			ReferralCode: code,
			InvitedBy:    invitedBy,
		})
		if err != nil {
			return err
		}
		result.UserID = userID
		if result.SuperAdmin {
			if err := s.admins.CreateAdmin(ctx, tx, userID, true, nil); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, userID, "register", "user", strconv.FormatInt(userID, 10), map[string]any{
			"invited_by": invitedBy,
			"ip":         req.IP,
			"user_agent": req.UserAgent,
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return RegisterResult{}, ErrPhoneTaken
		}
		return RegisterResult{}, err
	}
	logger.Log.WithFields(logrus.Fields{
		"user_id":    result.UserID,
		"invited_by": invitedBy,
	}).Info("user registered")
	return result, nil
}

func (s *AccountService) allocateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		taken, err := s.users.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", errCodeExhausted
}

func (s *AccountService) Login(ctx context.Context, phone, password, ip string) (models.User, error) {
	user, err := s.users.GetByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		if store.IsNotFound(err) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return models.User{}, ErrInvalidCredentials
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.audit.Log(ctx, tx, user.ID, "login", "user", strconv.FormatInt(user.ID, 10), map[string]any{
			"ip": ip,
		})
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}
