package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"blingsync/internal/bling"
	"blingsync/internal/metrics"
	"blingsync/internal/model"
	"blingsync/internal/store"
	"blingsync/internal/sync/config"
	"blingsync/internal/token"
)

// RemoteClient is the slice of the ERP surface the orchestrator needs.
// Implemented by bling.Client; tests substitute fakes.
type RemoteClient interface {
	ListOpenAndSettled(ctx context.Context, acc model.Account) ([]model.Receivable, error)
	FindOrderIDByNumber(ctx context.Context, accountID string, numero string) (int64, error)
	GetOrderStatus(ctx context.Context, accountID string, orderID int64) (*int, error)
	SetOrderStatus(ctx context.Context, accountID string, orderID int64, status int) error
}

type Service interface {
	RunSync(ctx context.Context, accountID string) (model.RunSummary, error)
	GetState(ctx context.Context, accountID string) (model.PersistedState, error)
	Accounts() []model.Account
	StartPolling(ctx context.Context)
}

var ErrUnknownAccount = errors.New("unknown account")

const reasonAlreadyRunning = "sync_already_running"

type service struct {
	cfg      config.Config
	accounts []model.Account
	byID     map[string]model.Account
	client   RemoteClient
	store    store.Store
	tokens   token.Provider
	zaplog   *zap.Logger

	mu      sync.Mutex
	running map[string]bool
}

func NewService(cfg config.Config, accounts []model.Account, client RemoteClient, store store.Store, tokens token.Provider, zaplog *zap.Logger) Service {
	byID := make(map[string]model.Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}
	return &service{
		cfg:      cfg,
		accounts: accounts,
		byID:     byID,
		client:   client,
		store:    store,
		tokens:   tokens,
		zaplog:   zaplog,
		running:  make(map[string]bool),
	}
}

func (s *service) Accounts() []model.Account {
	return s.accounts
}

func (s *service) GetState(ctx context.Context, accountID string) (model.PersistedState, error) {
	if _, ok := s.byID[accountID]; !ok {
		return model.PersistedState{}, fmt.Errorf("%w: %q", ErrUnknownAccount, accountID)
	}
	return s.store.StateGet(ctx, accountID)
}

// RunSync executes one synchronization pass for the account. At most one
// run per account is in flight; an overlapping call returns a skipped
// summary without touching state.
func (s *service) RunSync(ctx context.Context, accountID string) (model.RunSummary, error) {
	acc, ok := s.byID[accountID]
	if !ok {
		return model.RunSummary{}, fmt.Errorf("%w: %q", ErrUnknownAccount, accountID)
	}
	if err := acc.Workflow.Validate(); err != nil {
		return model.RunSummary{}, fmt.Errorf("account %q: %w", accountID, err)
	}

	s.mu.Lock()
	if s.running[accountID] {
		s.mu.Unlock()
		s.zaplog.Warn("sync already running, skipping", zap.String("account", accountID))
		return model.RunSummary{Skipped: true, Reason: reasonAlreadyRunning}, nil
	}
	s.running[accountID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, accountID)
		s.mu.Unlock()
	}()

	summary, err := s.runOnce(ctx, acc)
	if err != nil {
		metrics.SyncRuns.WithLabelValues(accountID, "error").Inc()
		return model.RunSummary{}, err
	}
	metrics.SyncRuns.WithLabelValues(accountID, "ok").Inc()
	return summary, nil
}

func (s *service) runOnce(ctx context.Context, acc model.Account) (model.RunSummary, error) {
	startedAt := time.Now()
	s.zaplog.Info("sync started", zap.String("account", acc.ID))

	state, err := s.store.StateGet(ctx, acc.ID)
	if err != nil {
		return model.RunSummary{}, err
	}
	state.PruneProcessed(s.cfg.StateTTL, s.cfg.StateMaxItems, time.Now())
	state.PrunePending(s.cfg.StateTTL, time.Now())

	contas, err := s.client.ListOpenAndSettled(ctx, acc)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("fetch receivables: %w", err)
	}

	var summary model.RunSummary
	summary.TotalRead = len(contas)
	for _, conta := range contas {
		if conta.Situacao == model.ReceivableSettled {
			summary.TotalSettled++
		}
	}
	s.zaplog.Info("receivables fetched",
		zap.String("account", acc.ID),
		zap.Int("total", summary.TotalRead),
		zap.Int("settled", summary.TotalSettled),
	)

	for _, conta := range contas {
		contaID := strconv.FormatInt(conta.ID, 10)

		// only settled receivables move orders
		if conta.Situacao != model.ReceivableSettled {
			summary.Skips.NaoRecebida++
			continue
		}
		if _, ok := state.Processed[contaID]; ok {
			summary.Skips.JaProcessada++
			continue
		}

		if skipped := s.classifyOrigin(ctx, acc, &state, &summary, conta, contaID); skipped {
			continue
		}
		numero := conta.OrderNumber()

		pedidoID, err := s.client.FindOrderIDByNumber(ctx, acc.ID, numero)
		if err != nil {
			// not processed: the order may simply not exist yet
			if errors.Is(err, bling.ErrOrderNotFound) {
				s.zaplog.Warn("order not found",
					zap.String("account", acc.ID),
					zap.String("conta", contaID),
					zap.String("numero", numero),
				)
				summary.Skips.PedidoNaoEncontrado++
				summary.Actions = append(summary.Actions, model.Action{
					ContaID:      contaID,
					NumeroPedido: numero,
					Status:       model.ActionFail,
					Motivo:       "Pedido não encontrado pelo numero",
				})
			} else {
				s.failAction(&summary, acc.ID, contaID, numero, 0, err)
			}
			continue
		}

		pendKey := strconv.FormatInt(pedidoID, 10)
		if _, ok := state.Pending[pendKey]; ok {
			s.continuePending(ctx, acc, &state, &summary, contaID, numero, pedidoID, pendKey)
			continue
		}

		if proceeded := s.startFlow(ctx, acc, &state, &summary, contaID, numero, pedidoID, pendKey); proceeded {
			// pace before touching the next receivable
			s.waitStep(ctx)
		}
	}

	state.LastSyncAt = time.Now().UTC().Format(time.RFC3339)
	state.PruneProcessed(s.cfg.StateTTL, s.cfg.StateMaxItems, time.Now())
	state.PrunePending(s.cfg.StateTTL, time.Now())
	s.saveState(ctx, acc.ID, state)

	summary.SyncedAt = state.LastSyncAt
	summary.TookMS = time.Since(startedAt).Milliseconds()
	summary.TotalActions = len(summary.Actions)
	summary.ProcessedSize = len(state.Processed)
	summary.PendingSize = len(state.Pending)

	metrics.SyncDuration.WithLabelValues(acc.ID).Observe(time.Since(startedAt).Seconds())
	s.zaplog.Info("sync finished",
		zap.String("account", acc.ID),
		zap.Int64("tookMs", summary.TookMS),
		zap.Int("read", summary.TotalRead),
		zap.Int("settled", summary.TotalSettled),
		zap.Int("processed", summary.OrdersProcessed),
		zap.Int("actions", summary.TotalActions),
		zap.Int("processedCache", summary.ProcessedSize),
		zap.Int("pendingOrders", summary.PendingSize),
		zap.Any("skips", summary.Skips),
	)

	return summary, nil
}

// classifyOrigin marks receivables that can never be actionable: no origin,
// a non-sale origin, or a missing order number. One-shot: they go straight
// into the processed cache.
func (s *service) classifyOrigin(ctx context.Context, acc model.Account, state *model.PersistedState, summary *model.RunSummary, conta model.Receivable, contaID string) bool {
	var motivo string
	switch {
	case conta.Origem == nil:
		summary.Skips.SemOrigem++
		motivo = "Sem origem"
	case conta.Origem.TipoOrigem != model.OriginSale:
		summary.Skips.OrigemNaoVenda++
		motivo = fmt.Sprintf("origem.tipoOrigem=%s", conta.Origem.TipoOrigem)
	case conta.OrderNumber() == "":
		summary.Skips.SemNumero++
		motivo = "Sem origem.numero"
	default:
		return false
	}

	s.zaplog.Warn("receivable skipped",
		zap.String("account", acc.ID),
		zap.String("conta", contaID),
		zap.String("motivo", motivo),
	)
	state.Processed[contaID] = time.Now().UnixMilli()
	summary.Actions = append(summary.Actions, model.Action{
		ContaID: contaID,
		Status:  model.ActionSkip,
		Motivo:  motivo,
	})
	s.saveState(ctx, acc.ID, *state)
	return true
}

// continuePending resumes an order already mid-workflow.
func (s *service) continuePending(ctx context.Context, acc model.Account, state *model.PersistedState, summary *model.RunSummary, contaID, numero string, pedidoID int64, pendKey string) {
	summary.Skips.PendentesProcessados++
	summary.OrdersProcessed++

	current, err := s.client.GetOrderStatus(ctx, acc.ID, pedidoID)
	if err != nil {
		s.failAction(summary, acc.ID, contaID, numero, pedidoID, err)
		return
	}

	w := acc.Workflow
	decision := NextAction(w.Flow, w.FinalStatus, current, state.Pending[pendKey].StepIndex)

	switch decision.Kind {
	case DecisionComplete:
		s.zaplog.Info("order already in final status",
			zap.String("account", acc.ID),
			zap.Int64("order", pedidoID),
			zap.Int("status", w.FinalStatus),
		)
		s.finishOrder(ctx, acc.ID, state, summary, contaID, numero, pedidoID, pendKey,
			fmt.Sprintf("pendente->%d", w.FinalStatus))

	case DecisionForceComplete:
		s.zaplog.Warn("forcing final status",
			zap.String("account", acc.ID),
			zap.Int64("order", pedidoID),
			zap.Int("status", decision.Apply),
		)
		s.waitStep(ctx)
		if err := s.client.SetOrderStatus(ctx, acc.ID, pedidoID, decision.Apply); err != nil {
			s.failAction(summary, acc.ID, contaID, numero, pedidoID, err)
			return
		}
		s.finishOrder(ctx, acc.ID, state, summary, contaID, numero, pedidoID, pendKey,
			fmt.Sprintf("pendente->force%d", decision.Apply))

	case DecisionAdvance:
		// checkpoint the effective step before the call so a crash here
		// cannot regress below it
		pend := state.Pending[pendKey]
		pend.StepIndex = decision.NextStep - 1
		pend.TS = time.Now().UnixMilli()
		state.Pending[pendKey] = pend
		s.saveState(ctx, acc.ID, *state)

		s.zaplog.Info("advancing order",
			zap.String("account", acc.ID),
			zap.Int64("order", pedidoID),
			zap.Int("apply", decision.Apply),
			zap.Int("step", decision.NextStep),
			zap.Int("flowLen", len(w.Flow)),
		)
		s.waitStep(ctx)
		if err := s.client.SetOrderStatus(ctx, acc.ID, pedidoID, decision.Apply); err != nil {
			s.failAction(summary, acc.ID, contaID, numero, pedidoID, err)
			return
		}

		pend.StepIndex = decision.NextStep
		pend.TS = time.Now().UnixMilli()
		state.Pending[pendKey] = pend
		s.saveState(ctx, acc.ID, *state)

		if decision.Completes {
			s.finishOrder(ctx, acc.ID, state, summary, contaID, numero, pedidoID, pendKey,
				fmt.Sprintf("pendente->%d", decision.Apply))
			return
		}
		summary.Actions = append(summary.Actions, model.Action{
			ContaID:      contaID,
			NumeroPedido: numero,
			PedidoID:     pedidoID,
			Status:       model.ActionPending,
			Applied:      decision.Apply,
		})
	}
}

// startFlow handles a receivable whose order has no pending record yet.
// Returns false when the item was skipped without any remote mutation.
func (s *service) startFlow(ctx context.Context, acc model.Account, state *model.PersistedState, summary *model.RunSummary, contaID, numero string, pedidoID int64, pendKey string) bool {
	current, err := s.client.GetOrderStatus(ctx, acc.ID, pedidoID)
	if err != nil {
		s.failAction(summary, acc.ID, contaID, numero, pedidoID, err)
		return true
	}

	w := acc.Workflow
	if current == nil || *current != w.StartStatus {
		// unexpected intermediate state with no prior record: a human
		// must intervene, the sync must not force-advance
		s.zaplog.Warn("order not in start status, flow not started",
			zap.String("account", acc.ID),
			zap.Int64("order", pedidoID),
			zap.Any("status", current),
			zap.Int("startStatus", w.StartStatus),
		)
		summary.Skips.NaoIniciaFluxo++
		state.Processed[contaID] = time.Now().UnixMilli()
		summary.Actions = append(summary.Actions, model.Action{
			ContaID:      contaID,
			NumeroPedido: numero,
			PedidoID:     pedidoID,
			Status:       model.ActionSkip,
			Motivo:       fmt.Sprintf("Não inicia fluxo: situacaoAtual=%s (precisa ser %d)", statusString(current), w.StartStatus),
		})
		s.saveState(ctx, acc.ID, *state)
		return false
	}

	summary.OrdersProcessed++
	s.zaplog.Info("starting flow",
		zap.String("account", acc.ID),
		zap.Int64("order", pedidoID),
		zap.Ints("flow", w.Flow),
	)

	state.Pending[pendKey] = model.PendingOrder{
		StepIndex:    0,
		ReceivableID: contaID,
		OrderNumber:  numero,
		TS:           time.Now().UnixMilli(),
	}
	s.saveState(ctx, acc.ID, *state)

	first := w.Flow[0]
	s.waitStep(ctx)
	if err := s.client.SetOrderStatus(ctx, acc.ID, pedidoID, first); err != nil {
		s.failAction(summary, acc.ID, contaID, numero, pedidoID, err)
		return true
	}

	pend := state.Pending[pendKey]
	pend.StepIndex = 1
	pend.TS = time.Now().UnixMilli()
	state.Pending[pendKey] = pend
	s.saveState(ctx, acc.ID, *state)

	if first == w.FinalStatus {
		s.finishOrder(ctx, acc.ID, state, summary, contaID, numero, pedidoID, pendKey,
			fmt.Sprintf("novo->%d", first))
		return true
	}

	summary.Actions = append(summary.Actions, model.Action{
		ContaID:      contaID,
		NumeroPedido: numero,
		PedidoID:     pedidoID,
		Status:       model.ActionPending,
		Applied:      first,
	})
	return true
}

// finishOrder removes the pending record, marks the receivable processed
// and persists the mutation.
func (s *service) finishOrder(ctx context.Context, accountID string, state *model.PersistedState, summary *model.RunSummary, contaID, numero string, pedidoID int64, pendKey string, via string) {
	delete(state.Pending, pendKey)
	state.Processed[contaID] = time.Now().UnixMilli()
	summary.Actions = append(summary.Actions, model.Action{
		ContaID:      contaID,
		NumeroPedido: numero,
		PedidoID:     pedidoID,
		Status:       model.ActionOK,
		Via:          via,
	})
	s.saveState(ctx, accountID, *state)
	s.zaplog.Info("flow complete",
		zap.String("account", accountID),
		zap.Int64("order", pedidoID),
		zap.String("via", via),
	)
}

func (s *service) failAction(summary *model.RunSummary, accountID, contaID, numero string, pedidoID int64, err error) {
	s.zaplog.Error("order processing failed",
		zap.String("account", accountID),
		zap.String("conta", contaID),
		zap.String("numero", numero),
		zap.Int64("order", pedidoID),
		zap.Error(err),
	)
	summary.Actions = append(summary.Actions, model.Action{
		ContaID:      contaID,
		NumeroPedido: numero,
		PedidoID:     pedidoID,
		Status:       model.ActionFail,
		Motivo:       err.Error(),
	})
}

// saveState checkpoints after every state mutation so a crash loses at
// most the in-flight item.
func (s *service) saveState(ctx context.Context, accountID string, state model.PersistedState) {
	if err := s.store.StateSave(ctx, accountID, state); err != nil {
		s.zaplog.Error("state save failed",
			zap.String("account", accountID),
			zap.Error(err),
		)
	}
}

func (s *service) waitStep(ctx context.Context) {
	if s.cfg.RequestDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(s.cfg.RequestDelay):
	}
}

func statusString(status *int) string {
	if status == nil {
		return "null"
	}
	return strconv.Itoa(*status)
}

// StartPolling runs every account on a fixed interval until the context
// ends. Accounts still waiting for their first OAuth grant are skipped.
func (s *service) StartPolling(ctx context.Context) {
	if s.cfg.PollInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, acc := range s.accounts {
					if !s.tokens.HasTokens(ctx, acc.ID) {
						s.zaplog.Warn("no tokens yet, waiting for authorization",
							zap.String("account", acc.ID))
						continue
					}
					if _, err := s.RunSync(ctx, acc.ID); err != nil {
						s.zaplog.Error("polling sync failed",
							zap.String("account", acc.ID),
							zap.Error(err),
						)
					}
				}
			}
		}
	}()
}
