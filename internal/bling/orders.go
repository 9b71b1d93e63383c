package bling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var ErrOrderNotFound = errors.New("order not found")

// FindOrderIDByNumber resolves a sales-order number to its remote id.
func (c *Client) FindOrderIDByNumber(ctx context.Context, accountID string, numero string) (int64, error) {
	params := url.Values{}
	params.Set("numero", numero)

	raw, err := c.gw.Get(ctx, accountID, "/pedidos/vendas", params)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Data []struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, err
	}
	if len(payload.Data) == 0 || payload.Data[0].ID == 0 {
		return 0, fmt.Errorf("numero %s: %w", numero, ErrOrderNotFound)
	}
	return payload.Data[0].ID, nil
}

// GetOrderStatus reads the order's current status code. nil means the
// remote representation carried no recognizable code; callers must not
// treat that as the start status.
func (c *Client) GetOrderStatus(ctx context.Context, accountID string, orderID int64) (*int, error) {
	raw, err := c.gw.Get(ctx, accountID, fmt.Sprintf("/pedidos/vendas/%d", orderID), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data struct {
			Situacao   statusCode `json:"situacao"`
			IDSituacao *int       `json:"idSituacao"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	status := payload.Data.Situacao.id
	if status == nil {
		status = payload.Data.IDSituacao
	}

	c.zaplog.Info("order status read",
		zap.String("account", accountID),
		zap.Int64("order", orderID),
		zap.Any("status", status),
	)
	return status, nil
}

// SetOrderStatus applies a status transition on the remote order.
func (c *Client) SetOrderStatus(ctx context.Context, accountID string, orderID int64, status int) error {
	path := fmt.Sprintf("/pedidos/vendas/%d/situacoes/%d?lancarContasFinanceiras=false", orderID, status)
	_, err := c.gw.Patch(ctx, accountID, path, map[string]any{})
	return err
}

// statusCode decodes the situação field in the shapes the ERP returns:
// a bare number, a numeric string, or an object carrying an id. Anything
// else leaves the code unknown rather than coercing to zero.
type statusCode struct {
	id *int
}

func (s *statusCode) UnmarshalJSON(b []byte) error {
	s.id = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	switch b[0] {
	case '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		if v, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
			s.id = &v
		}
	case '{':
		var obj struct {
			ID json.Number `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil
		}
		if v, err := strconv.Atoi(obj.ID.String()); err == nil {
			s.id = &v
		}
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return nil
		}
		if v, err := strconv.Atoi(n.String()); err == nil {
			s.id = &v
		}
	}
	return nil
}
