package node

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"github.com/flowengine/engine/internal/engine/domain"
	"github.com/flowengine/engine/pkg/resilience"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// aiAgentHandler is a structural passthrough: no LLM provider is wired
// into this revision, only the {messages, result} contract.
type aiAgentHandler struct{}

func (aiAgentHandler) Run(ctx context.Context, nodeType string, inputs map[string]interface{}, _ map[string]domain.Credential) (interface{}, error) {
	return map[string]interface{}{
		"messages": inputs["messages"],
		"result":   map[string]interface{}{"answer": nil},
	}, nil
}

// emailHandler sends mail over implicit TLS (SMTPS), grounded on the
// credential shape email.data.{sender_email,sender_password,smtp_server}.
type emailHandler struct {
	smtpPort int
}

func (h emailHandler) Run(ctx context.Context, nodeType string, inputs map[string]interface{}, credentials map[string]domain.Credential) (interface{}, error) {
	receiver, _ := inputs["receiver_email"].(string)
	subject, _ := inputs["subject"].(string)
	body, _ := inputs["message"].(string)

	emailCred := credentials["email"]
	sender, _ := emailCred.Data["sender_email"].(string)
	password, _ := emailCred.Data["sender_password"].(string)
	smtpServer, _ := emailCred.Data["smtp_server"].(string)

	port := h.smtpPort
	if port == 0 {
		port = 465
	}
	addr := fmt.Sprintf("%s:%d", smtpServer, port)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", sender, receiver, subject, body)

	if err := sendSMTPS(addr, smtpServer, sender, password, receiver, []byte(msg)); err != nil {
		return nil, fmt.Errorf("email: send failed: %w", err)
	}
	return map[string]interface{}{"status": "sent"}, nil
}

// sendSMTPS dials with an implicit-TLS connection (SMTP_PORT default
// 465 is smtps, not STARTTLS), matching the original's smtplib.SMTP_SSL.
func sendSMTPS(addr, host, sender, password, receiver string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer client.Close()

	auth := smtp.PlainAuth("", sender, password, host)
	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(sender); err != nil {
		return err
	}
	if err := client.Rcpt(receiver); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// telegramHandler posts to the Bot API, grounded on credential shape
// telegram.data.{bot_token}.
type telegramHandler struct {
	client *http.Client
}

// telegramRetryConfig allows one quick retry (two attempts) on a transient
// Bot API hiccup; the circuit breaker wrapping the whole node type in
// the registry still trips if telegram stays down across jobs.
func telegramRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = 150 * time.Millisecond
	return cfg
}

func (h telegramHandler) Run(ctx context.Context, nodeType string, inputs map[string]interface{}, credentials map[string]domain.Credential) (interface{}, error) {
	chatID := inputs["chat_id"]
	text, _ := inputs["message"].(string)

	telegramCred := credentials["telegram"]
	botToken, _ := telegramCred.Data["bot_token"].(string)

	payload, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal payload: %w", err)
	}

	return resilience.RetryWithResult(ctx, telegramRetryConfig(), func() (map[string]interface{}, error) {
		return h.send(ctx, botToken, payload)
	})
}

func (h telegramHandler) send(ctx context.Context, botToken string, payload []byte) (map[string]interface{}, error) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("telegram: decode response: %w", err)
	}
	return decoded, nil
}

// unknownHandler is the fallback for any node type with no registered
// handler: a structural acknowledgment, never an error.
type unknownHandler struct{}

func (unknownHandler) Run(ctx context.Context, nodeType string, _ map[string]interface{}, _ map[string]domain.Credential) (interface{}, error) {
	return map[string]interface{}{"status": "processed", "type": nodeType}, nil
}
