// Package services содержит логику выпуска сессий для внешнего шлюза.
//
// Вызывающий доказывает владение ключом ed25519, подписывая сообщение
// с текущим временем. В обмен выдаётся JWT, subject которого — адрес
// владельца в леджере; дальнейшие операции авторизуются этим токеном.
package services

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/lib/jwt"
	"github.com/onchainlab/subscription-ledger/internal/models"
)

var (
	// ErrRequestExpired — метка времени запроса вне допустимого окна.
	ErrRequestExpired = errors.New("authentication request expired")
	// ErrInvalidSignature — подпись не соответствует ключу и сообщению.
	ErrInvalidSignature = errors.New("invalid signature")
)

// signInMessage — шаблон подписываемого сообщения.
const signInMessage = "Sign in to Subscription Ledger: %d"

// maxTimestampSkew — допустимое расхождение метки времени запроса с часами сервера.
const maxTimestampSkew = 24 * time.Hour

// SessionService выпускает JWT в обмен на подпись владельца ключа.
type SessionService struct {
	jwtMaker jwt.Maker
	tokenTTL time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewSessionService создает новый экземпляр SessionService.
func NewSessionService(jwtMaker jwt.Maker, tokenTTL time.Duration, log *slog.Logger) *SessionService {
	return &SessionService{
		jwtMaker: jwtMaker,
		tokenTTL: tokenTTL,
		now:      time.Now,
		log:      log,
	}
}

// Authenticate проверяет подпись и выпускает сессионный токен.
func (s *SessionService) Authenticate(_ context.Context, req models.SessionRequest) (*models.SessionResponse, error) {
	const op = "services.session.Authenticate"

	now := s.now().Unix()
	skew := now - req.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > maxTimestampSkew {
		return nil, ErrRequestExpired
	}

	pubKey, err := hex.DecodeString(req.PublicKey)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%s: invalid public key", op)
	}
	signature, err := hex.DecodeString(req.Signature)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%s: invalid signature format", op)
	}

	message := fmt.Sprintf(signInMessage, req.Timestamp)
	if !ed25519.Verify(ed25519.PublicKey(pubKey), []byte(message), signature) {
		return nil, ErrInvalidSignature
	}

	owner, err := address.FromPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.jwtMaker.GenerateToken(owner.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("issued session token", slog.String("address", owner.String()))
	return &models.SessionResponse{
		Token:     token,
		ExpiresIn: int64(s.tokenTTL.Seconds()),
		PublicKey: req.PublicKey,
		Address:   owner.String(),
	}, nil
}
