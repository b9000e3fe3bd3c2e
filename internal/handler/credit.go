package handler

import (
	"fmt"
	"net/http"
	"time"

	"podium/internal/ledger"
	"podium/internal/models"
	"podium/internal/payment"
	"podium/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// CreditHandler exposes the credit balance, transaction history and the
// purchasable package catalog.
type CreditHandler struct {
	Ledger   *ledger.Service
	Catalog  *payment.Catalog
	PageSize int
}

func NewCreditHandler(led *ledger.Service, catalog *payment.Catalog, pageSize int) *CreditHandler {
	return &CreditHandler{Ledger: led, Catalog: catalog, PageSize: pageSize}
}

func (h *CreditHandler) Balance(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	acct, err := h.Ledger.Account(user.ID)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load balance")
		return
	}
	util.Success(c, util.Response{
		"balance":         acct.Balance,
		"lifetime_earned": acct.LifetimeEarned,
		"lifetime_used":   acct.LifetimeUsed,
	})
}

func (h *CreditHandler) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page, size := pageParams(c, h.PageSize)
	txs, total, err := h.Ledger.History(user.ID, page, size)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load history")
		return
	}

	items := make([]util.Response, 0, len(txs))
	for i := range txs {
		items = append(items, txView(&txs[i]))
	}
	util.Success(c, util.Response{
		"transactions": items,
		"total":        total,
		"page":         page,
		"page_size":    size,
	})
}

func (h *CreditHandler) Packages(c *gin.Context) {
	pkgs := h.Catalog.All()
	items := make([]util.Response, 0, len(pkgs))
	for _, p := range pkgs {
		items = append(items, util.Response{
			"slug":          p.Slug,
			"name":          p.Name,
			"base_credits":  p.BaseCredits,
			"bonus_credits": p.BonusCredits,
			"total_credits": p.TotalCredits(),
			"price_minor":   p.PriceMinor,
			"currency":      p.Currency,
		})
	}
	util.Success(c, util.Response{"packages": items})
}

// Export streams the user's full transaction history as an XLSX workbook.
func (h *CreditHandler) Export(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	txs, err := h.Ledger.AllTransactions(user.ID)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load history")
		return
	}

	f := excelize.NewFile()
	sheetName := "Credits"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to create sheet")
		return
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Date", "Type", "Amount", "Description", "Reference"}
	for i, hd := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, hd)
	}

	for idx, tx := range txs {
		row := idx + 2
		ref := ""
		if tx.ExternalReference != nil {
			ref = *tx.ExternalReference
		}
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), tx.CreatedAt.Format("2006-01-02 15:04"))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), tx.Type)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), tx.Amount)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), tx.Description)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), ref)
	}

	f.SetColWidth(sheetName, "A", "A", 18)
	f.SetColWidth(sheetName, "B", "B", 10)
	f.SetColWidth(sheetName, "C", "C", 10)
	f.SetColWidth(sheetName, "D", "D", 40)
	f.SetColWidth(sheetName, "E", "E", 28)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"credits_%s.xlsx\"",
		time.Now().Format("20060102")))

	if err := f.Write(c.Writer); err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to export")
	}
}

func txView(tx *models.CreditTransaction) util.Response {
	return util.Response{
		"id":          tx.ID,
		"amount":      tx.Amount,
		"type":        tx.Type,
		"session_id":  tx.SessionID,
		"reference":   tx.ExternalReference,
		"description": tx.Description,
		"created_at":  tx.CreatedAt,
	}
}
