package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"growvia-service/pkg/common"
)

// PaystackGateway implements BankGateway against the Paystack transfer API.
type PaystackGateway struct {
	BaseURL   string
	SecretKey string
	Client    *common.HTTPClient
}

func NewPaystackGateway(baseURL, secretKey string, timeout time.Duration) *PaystackGateway {
	return &PaystackGateway{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SecretKey: secretKey,
		Client:    common.NewHTTPClient(timeout),
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (g *PaystackGateway) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + g.SecretKey}
}

func (g *PaystackGateway) decode(env paystackEnvelope, out interface{}) error {
	if !env.Status {
		return fmt.Errorf("paystack: %s", env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (g *PaystackGateway) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (string, error) {
	q := url.Values{}
	q.Set("account_number", accountNumber)
	q.Set("bank_code", bankCode)

	var env paystackEnvelope
	if err := g.Client.GetJSON(ctx, g.BaseURL+"/bank/resolve?"+q.Encode(), g.headers(), &env); err != nil {
		return "", fmt.Errorf("resolve account: %w", err)
	}
	var data struct {
		AccountName string `json:"account_name"`
	}
	if err := g.decode(env, &data); err != nil {
		return "", err
	}
	if data.AccountName == "" {
		return "", errors.New("paystack: empty account name")
	}
	return data.AccountName, nil
}

// Disburse creates a transfer recipient when none is cached, then starts the
// transfer. A 4xx is reported as failed; for a reference that may already have
// been sent the caller must confirm with VerifyTransfer before refunding.
func (g *PaystackGateway) Disburse(ctx context.Context, req DisbursementRequest) (DisbursementResult, error) {
	recipient := req.RecipientCode
	if recipient == "" {
		var err error
		recipient, err = g.createRecipient(ctx, req)
		if err != nil {
			return DisbursementResult{}, err
		}
	}

	payload := map[string]interface{}{
		"source":    "balance",
		"amount":    req.Amount.Shift(2).IntPart(),
		"recipient": recipient,
		"reference": req.Reference,
		"reason":    req.Reason,
		"currency":  "NGN",
	}
	var env paystackEnvelope
	err := g.Client.PostJSON(ctx, g.BaseURL+"/transfer", payload, g.headers(), &env)
	if err != nil {
		var statusErr *common.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			logrus.WithField("reference", req.Reference).WithField("body", statusErr.Body).Warn("paystack rejected transfer")
			return DisbursementResult{Status: DisbursementFailed, RecipientCode: recipient, Message: paystackMessage(statusErr.Body)}, nil
		}
		return DisbursementResult{}, fmt.Errorf("initiate transfer: %w", err)
	}

	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	if err := g.decode(env, &data); err != nil {
		return DisbursementResult{Status: DisbursementFailed, RecipientCode: recipient, Message: err.Error()}, nil
	}

	return DisbursementResult{
		Status:            transferStatus(data.Status),
		ProviderReference: data.TransferCode,
		RecipientCode:     recipient,
		Message:           env.Message,
	}, nil
}

// VerifyTransfer looks a transfer up by our reference.
func (g *PaystackGateway) VerifyTransfer(ctx context.Context, reference string) (DisbursementResult, error) {
	var env paystackEnvelope
	err := g.Client.GetJSON(ctx, g.BaseURL+"/transfer/verify/"+url.PathEscape(reference), g.headers(), &env)
	if err != nil {
		var statusErr *common.HTTPStatusError
		if errors.As(err, &statusErr) && transferMissing(statusErr) {
			return DisbursementResult{}, ErrTransferNotFound
		}
		return DisbursementResult{}, fmt.Errorf("verify transfer: %w", err)
	}

	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
		Reason       string `json:"reason"`
	}
	if err := g.decode(env, &data); err != nil {
		return DisbursementResult{}, err
	}
	result := DisbursementResult{
		Status:            transferStatus(data.Status),
		ProviderReference: data.TransferCode,
		Message:           data.Reason,
	}
	if result.Status == DisbursementFailed && result.Message == "" {
		result.Message = "transfer " + data.Status + " at provider"
	}
	return result, nil
}

func transferStatus(status string) DisbursementStatus {
	switch status {
	case "success":
		return DisbursementSuccess
	case "failed", "abandoned", "rejected", "reversed":
		return DisbursementFailed
	default:
		return DisbursementPending
	}
}

// Paystack answers an unknown reference with 404, or 400 "Transfer not found".
func transferMissing(err *common.HTTPStatusError) bool {
	if err.StatusCode == http.StatusNotFound {
		return true
	}
	return err.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(paystackMessage(err.Body)), "not found")
}

func (g *PaystackGateway) createRecipient(ctx context.Context, req DisbursementRequest) (string, error) {
	payload := map[string]interface{}{
		"type":           "nuban",
		"name":           req.AccountName,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       "NGN",
	}
	var env paystackEnvelope
	if err := g.Client.PostJSON(ctx, g.BaseURL+"/transferrecipient", payload, g.headers(), &env); err != nil {
		return "", fmt.Errorf("create transfer recipient: %w", err)
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := g.decode(env, &data); err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

func paystackMessage(body string) string {
	var env paystackEnvelope
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Message != "" {
		return env.Message
	}
	return "transfer rejected by provider"
}

// VerifySignature checks the x-paystack-signature header (HMAC-SHA512 of the body).
func (g *PaystackGateway) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(g.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// ParseTransferEvent maps a Paystack webhook body onto a transfer event.
func ParseTransferEvent(body []byte) (TransferEventDTO, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference    string `json:"reference"`
			TransferCode string `json:"transfer_code"`
			Reason       string `json:"reason"`
			Status       string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return TransferEventDTO{}, &common.ValidationError{Message: "malformed webhook payload", Cause: err}
	}
	event := TransferEventDTO{
		Event:             payload.Event,
		Reference:         payload.Data.Reference,
		ProviderReference: payload.Data.TransferCode,
	}
	if payload.Event != TransferEventSuccess {
		event.Reason = payload.Data.Reason
	}
	return event, nil
}
