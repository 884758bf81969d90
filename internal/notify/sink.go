// Package notify turns committed visitor changes into push notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/prometheus"
	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Push is one notification addressed to a set of device tokens.
type Push struct {
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Tokens []string          `json:"tokens"`
	Data   map[string]string `json:"data,omitempty"`
}

// Sink delivers pushes. Delivery is best effort: sinks log and count failures but never
// report them to the caller.
type Sink interface {
	Notify(ctx context.Context, push Push)
}

// LogSink writes pushes to the log. It is the default when no push provider is configured.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink returns a sink that logs pushes through log.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

// Notify logs the push and counts it as sent.
func (s *LogSink) Notify(_ context.Context, push Push) {
	s.log.Info("Push notification",
		zap.String("title", push.Title),
		zap.String("body", push.Body),
		zap.Int("tokens", len(push.Tokens)))
	prometheus.RecordNotification("log", "sent")
}

// RedisStreamSink appends pushes to a Redis stream read by a separate push worker.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	log    *zap.Logger
}

// NewRedisStreamSink returns a sink that appends pushes to stream.
func NewRedisStreamSink(client *redis.Client, stream string, log *zap.Logger) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, log: log}
}

// Notify adds one stream entry per push. Tokens and data are JSON-encoded fields.
func (s *RedisStreamSink) Notify(ctx context.Context, push Push) {
	tokens, err := json.Marshal(push.Tokens)
	if err != nil {
		s.fail(push, err)
		return
	}
	values := map[string]interface{}{
		"title":     push.Title,
		"body":      push.Body,
		"tokens":    string(tokens),
		"timestamp": time.Now().Unix(),
	}
	if len(push.Data) > 0 {
		data, err := json.Marshal(push.Data)
		if err != nil {
			s.fail(push, err)
			return
		}
		values["data"] = string(data)
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}).Result()
	if err != nil {
		s.fail(push, err)
		return
	}

	s.log.Debug("Push queued", zap.String("stream", s.stream), zap.String("id", id))
	prometheus.RecordNotification("redis", "sent")
}

func (s *RedisStreamSink) fail(push Push, err error) {
	s.log.Error("Failed to queue push notification",
		zap.String("stream", s.stream),
		zap.String("title", push.Title),
		zap.Error(err))
	prometheus.RecordNotification("redis", "failed")
}

// fcmScope is the OAuth2 scope for the FCM HTTP v1 API.
const fcmScope = "https://www.googleapis.com/auth/firebase.messaging"

// FCMSink sends pushes through the FCM HTTP v1 API, one request per device token.
type FCMSink struct {
	client *resty.Client
	url    string
	tokens oauth2.TokenSource
	log    *zap.Logger
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// FCMTokenSource loads service account credentials from credentialsFile, or the
// application default credentials when it is empty.
func FCMTokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if credentialsFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, fcmScope)
		if err != nil {
			return nil, fmt.Errorf("find default credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read fcm credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("parse fcm credentials: %w", err)
	}
	return creds.TokenSource, nil
}

// NewFCMSink posts to {endpoint}/v1/projects/{projectID}/messages:send with bearer
// tokens from tokens.
func NewFCMSink(endpoint, projectID string, tokens oauth2.TokenSource, timeout time.Duration, log *zap.Logger) *FCMSink {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &FCMSink{
		client: client,
		url:    strings.TrimRight(endpoint, "/") + "/v1/projects/" + url.PathEscape(projectID) + "/messages:send",
		tokens: oauth2.ReuseTokenSource(nil, tokens),
		log:    log,
	}
}

// Notify sends the push to every device token. A rejected token does not stop the rest.
func (s *FCMSink) Notify(ctx context.Context, push Push) {
	if len(push.Tokens) == 0 {
		return
	}

	token, err := s.tokens.Token()
	if err != nil {
		s.log.Error("FCM access token unavailable", zap.String("title", push.Title), zap.Error(err))
		prometheus.RecordNotification("fcm", "failed")
		return
	}

	failed := 0
	for _, device := range push.Tokens {
		resp, err := s.client.R().
			SetContext(ctx).
			SetAuthToken(token.AccessToken).
			SetBody(fcmRequest{Message: fcmMessage{
				Token:        device,
				Notification: fcmNotification{Title: push.Title, Body: push.Body},
				Data:         push.Data,
			}}).
			Post(s.url)
		if err == nil && resp.IsError() {
			err = fmt.Errorf("fcm returned %s", resp.Status())
		}
		if err != nil {
			failed++
			s.log.Warn("FCM push failed", zap.String("title", push.Title), zap.Error(err))
		}
	}

	if failed == len(push.Tokens) {
		prometheus.RecordNotification("fcm", "failed")
		return
	}
	if failed > 0 {
		s.log.Warn("FCM rejected some tokens",
			zap.Int("success", len(push.Tokens)-failed),
			zap.Int("failure", failed))
	}
	prometheus.RecordNotification("fcm", "sent")
}
