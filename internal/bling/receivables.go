package bling

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"blingsync/internal/bling/config"
	"blingsync/internal/model"
	"blingsync/internal/token"
)

const dateLayout = "2006-01-02"

// Client is the typed surface over the gateway: receivables query and the
// sales-order lookups/transitions the sync needs.
type Client struct {
	gw     Gateway
	cfg    config.Config
	zaplog *zap.Logger
	now    func() time.Time
}

func NewClient(cfg config.Config, tokens token.Provider, pacer *Pacer, zaplog *zap.Logger) *Client {
	return &Client{
		gw:     NewGateway(cfg, tokens, pacer, zaplog),
		cfg:    cfg,
		zaplog: zaplog,
		now:    time.Now,
	}
}

// ListOpenAndSettled fetches the account's receivables in the configured
// date window, open and settled, filtered to its payment method.
func (c *Client) ListOpenAndSettled(ctx context.Context, acc model.Account) ([]model.Receivable, error) {
	params := receivableParams(acc.Workflow, c.businessToday())

	c.zaplog.Info("fetching receivables",
		zap.String("account", acc.ID),
		zap.Int64("paymentMethod", acc.Workflow.PaymentMethodID),
		zap.String("dateField", acc.Workflow.DateField),
	)

	raw, err := c.gw.Get(ctx, acc.ID, "/contas/receber", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data []model.Receivable `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// businessToday is "today" in the configured business timezone, not in the
// host's local time or UTC. A machine running ahead of the business day
// would otherwise miss same-day receivables.
func (c *Client) businessToday() time.Time {
	offset := time.Duration(c.cfg.TimezoneOffsetMinutes) * time.Minute
	return c.now().UTC().Add(offset)
}

func receivableParams(w model.WorkflowConfig, today time.Time) url.Values {
	from, to := dateWindow(w, today)

	params := url.Values{}
	params.Add("situacoes[]", strconv.Itoa(model.ReceivableOpen))
	params.Add("situacoes[]", strconv.Itoa(model.ReceivableSettled))
	if w.PaymentMethodID > 0 {
		params.Set("idFormaPagamento", strconv.FormatInt(w.PaymentMethodID, 10))
	}

	switch w.DateField {
	case model.DateFieldEmission:
		params.Set("dataEmissaoInicial", from+" 00:00:00")
		params.Set("dataEmissaoFinal", to+" 23:59:59")
	case model.DateFieldLastChange:
		params.Set("dataAlteracaoInicial", from+" 00:00:00")
		params.Set("dataAlteracaoFinal", to+" 23:59:59")
	default:
		params.Set("dataVencimentoInicial", from)
		params.Set("dataVencimentoFinal", to)
	}

	return params
}

// dateWindow computes the inclusive query bounds. lookbackDays counts
// calendar days including today.
func dateWindow(w model.WorkflowConfig, today time.Time) (string, string) {
	from := w.DateFrom
	if w.LookbackDays > 0 {
		from = today.AddDate(0, 0, -(w.LookbackDays - 1)).Format(dateLayout)
	}
	to := w.DateTo
	if to == "" {
		to = today.Format(dateLayout)
	}
	return from, to
}
