package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// Receivable situação codes on the remote side
const (
	ReceivableOpen    = 1
	ReceivableSettled = 2
)

// Origin type that starts the workflow. Everything else is skipped.
const OriginSale = "venda"

type Receivable struct {
	ID       int64             `json:"id"`
	Situacao int               `json:"situacao"`
	Origem   *ReceivableOrigin `json:"origem"`
}

type ReceivableOrigin struct {
	TipoOrigem string      `json:"tipoOrigem"`
	Numero     json.Number `json:"numero"`
}

// OrderNumber returns the originating sales-order number, or "" if the
// receivable has no usable origin.
func (r Receivable) OrderNumber() string {
	if r.Origem == nil {
		return ""
	}
	return strings.TrimSpace(r.Origem.Numero.String())
}

// Date-window field selectors for the receivables query
const (
	DateFieldEmission   = "emissao"
	DateFieldDueDate    = "vencimento"
	DateFieldLastChange = "alteracao"
)

var ErrInvalidWorkflow = errors.New("invalid workflow config")

// WorkflowConfig is the per-account status progression and query window.
type WorkflowConfig struct {
	StartStatus     int    `mapstructure:"start_situacao" json:"startSituacao"`
	Flow            []int  `mapstructure:"flow" json:"flow"`
	FinalStatus     int    `mapstructure:"final_situacao_id" json:"finalSituacaoId"`
	PaymentMethodID int64  `mapstructure:"forma_pagamento_id" json:"formaPagamentoId"`
	LookbackDays    int    `mapstructure:"lookback_days" json:"lookbackDays"`
	DateFrom        string `mapstructure:"data_inicial" json:"dataInicial,omitempty"`
	DateTo          string `mapstructure:"data_final" json:"dataFinal,omitempty"`
	DateField       string `mapstructure:"date_field" json:"dateField"`
}

// Normalize fills derivable defaults: final status falls back to the last
// flow element, the date field to due date.
func (w *WorkflowConfig) Normalize() {
	if w.FinalStatus == 0 && len(w.Flow) > 0 {
		w.FinalStatus = w.Flow[len(w.Flow)-1]
	}
	if w.DateField == "" {
		w.DateField = DateFieldDueDate
	}
}

// Validate reports whether the account can run at all. A run against an
// invalid workflow must fail before touching state.
func (w WorkflowConfig) Validate() error {
	if len(w.Flow) == 0 {
		return ErrInvalidWorkflow
	}
	if w.FinalStatus == 0 {
		return ErrInvalidWorkflow
	}
	switch w.DateField {
	case DateFieldEmission, DateFieldDueDate, DateFieldLastChange:
	default:
		return ErrInvalidWorkflow
	}
	return nil
}

// Account is one remote tenant with its own credentials and workflow.
// Access/refresh token fields are optional headless seeds.
type Account struct {
	ID           string         `mapstructure:"id"`
	ClientID     string         `mapstructure:"client_id"`
	ClientSecret string         `mapstructure:"client_secret"`
	RedirectURI  string         `mapstructure:"redirect_uri"`
	AccessToken  string         `mapstructure:"access_token"`
	RefreshToken string         `mapstructure:"refresh_token"`
	ExpiresAt    int64          `mapstructure:"expires_at"`
	Workflow     WorkflowConfig `mapstructure:"config"`
}

// TokenSet is the stored OAuth material for one account. ExpiresAt is unix
// milliseconds with the refresh safety margin already subtracted.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Run summary wire format. Field names match the original dashboard payload.

type RunSummary struct {
	Skipped         bool         `json:"skipped,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	SyncedAt        string       `json:"syncedAt,omitempty"`
	TookMS          int64        `json:"tookMs"`
	TotalRead       int          `json:"totalContasLidas"`
	TotalSettled    int          `json:"totalRecebidas"`
	OrdersProcessed int          `json:"pedidosProcessados"`
	TotalActions    int          `json:"totalAcoes"`
	ProcessedSize   int          `json:"processedSize"`
	PendingSize     int          `json:"pendingSize"`
	Skips           SkipCounters `json:"skips"`
	Actions         []Action     `json:"actions"`
}

type SkipCounters struct {
	NaoRecebida          int `json:"naoRecebida"`
	JaProcessada         int `json:"jaProcessada"`
	SemOrigem            int `json:"semOrigem"`
	OrigemNaoVenda       int `json:"origemNaoVenda"`
	SemNumero            int `json:"semNumero"`
	PedidoNaoEncontrado  int `json:"pedidoNaoEncontrado"`
	NaoIniciaFluxo       int `json:"naoIniciaNao6"`
	PendentesProcessados int `json:"pendentesProcessados"`
}

const (
	ActionOK      = "ok"
	ActionSkip    = "skip"
	ActionFail    = "falha"
	ActionPending = "pendente"
)

type Action struct {
	ContaID      string `json:"contaId"`
	NumeroPedido string `json:"numeroPedido,omitempty"`
	PedidoID     int64  `json:"pedidoId,omitempty"`
	Status       string `json:"status"`
	Motivo       string `json:"motivo,omitempty"`
	Applied      int    `json:"applied,omitempty"`
	Via          string `json:"via,omitempty"`
}
