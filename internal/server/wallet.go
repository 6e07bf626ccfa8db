package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
)

type walletResponse struct {
	Balance      decimal.Decimal            `json:"balance"`
	Transactions []walletdomain.Transaction `json:"transactions"`
}

func (s *Server) GetWallet(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	ctx := c.Request.Context()
	userID := mustActor(c).UserID
	balance, err := s.walletSvc.Balance(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	txs, err := s.walletSvc.Transactions(ctx, userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if txs == nil {
		txs = []walletdomain.Transaction{}
	}

	c.JSON(http.StatusOK, walletResponse{Balance: balance, Transactions: txs})
}

type createDepositRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Coin    string          `json:"coin"`
	Network string          `json:"network"`
}

func (s *Server) CreateDeposit(c *gin.Context) {
	var req createDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.depositSvc.CreateDeposit(c.Request.Context(), walletdomain.CreateDepositRequest{
		UserID:  mustActor(c).UserID,
		Amount:  req.Amount,
		Coin:    strings.TrimSpace(req.Coin),
		Network: strings.TrimSpace(req.Network),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (s *Server) GetDepositStatus(c *gin.Context) {
	depositID, ok := pathID(c)
	if !ok {
		return
	}

	view, err := s.depositSvc.DepositStatus(c.Request.Context(), mustActor(c).UserID, depositID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// VerifyDeposit runs an on-demand chain check for one pending deposit.
func (s *Server) VerifyDeposit(c *gin.Context) {
	depositID, ok := pathID(c)
	if !ok {
		return
	}

	view, err := s.reconciliation.VerifyDeposit(c.Request.Context(), mustActor(c).UserID, depositID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
