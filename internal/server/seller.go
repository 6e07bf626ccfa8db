package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	inventorydomain "github.com/smallbiznis/digimart/internal/inventory/domain"
)

type uploadCodesRequest struct {
	Codes []string `json:"codes"`
}

func (s *Server) UploadCodes(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	var req uploadCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.inventorySvc.UploadCodes(c.Request.Context(), inventorydomain.UploadCodesRequest{
		SellerID:  mustActor(c).UserID,
		ProductID: productID,
		Codes:     req.Codes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

type uploadAccountsRequest struct {
	Accounts []inventorydomain.AccountInput `json:"accounts"`
}

// UploadAccounts accepts either a single account object or {"accounts": [...]}.
func (s *Server) UploadAccounts(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	accounts, err := decodeAccounts(body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.inventorySvc.UploadAccounts(c.Request.Context(), inventorydomain.UploadAccountsRequest{
		SellerID:  mustActor(c).UserID,
		ProductID: productID,
		Accounts:  accounts,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func decodeAccounts(body []byte) ([]inventorydomain.AccountInput, error) {
	var bulk uploadAccountsRequest
	if err := json.Unmarshal(body, &bulk); err != nil {
		return nil, err
	}
	if bulk.Accounts != nil {
		return bulk.Accounts, nil
	}
	if !bytes.Contains(body, []byte(`"email"`)) {
		return nil, nil
	}
	var single inventorydomain.AccountInput
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	return []inventorydomain.AccountInput{single}, nil
}
