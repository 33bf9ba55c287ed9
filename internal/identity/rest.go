package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTClient Identity Toolkit 的 accounts:* 接口，Admin SDK 不提供密码登录与发信
type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRESTClient(baseURL, apiKey string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// codeError 把 "WEAK_PASSWORD : Password should be at least 6 characters" 之类的错误码映射为哨兵错误
func codeError(message string) error {
	code := strings.TrimSpace(strings.SplitN(message, ":", 2)[0])
	switch code {
	case "EMAIL_NOT_FOUND":
		return ErrUserNotFound
	case "INVALID_PASSWORD":
		return ErrWrongPassword
	case "INVALID_LOGIN_CREDENTIALS", "INVALID_ID_TOKEN":
		return ErrInvalidCredential
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return ErrInvalidEmail
	case "EMAIL_EXISTS":
		return ErrEmailExists
	case "WEAK_PASSWORD":
		return ErrWeakPassword
	case "USER_DISABLED":
		return ErrUserDisabled
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return ErrTooManyRequests
	}
	return fmt.Errorf("identity: %s", message)
}

func (c *RESTClient) call(ctx context.Context, method string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	endpoint := fmt.Sprintf("%s/accounts:%s?key=%s", c.baseURL, method, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求身份服务失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("读取身份服务响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Error.Message == "" {
			return fmt.Errorf("identity: unexpected status %d", resp.StatusCode)
		}
		return codeError(apiErr.Error.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析身份服务响应失败: %w", err)
	}
	return nil
}

type signInResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
}

// SignInWithPassword 返回的会话不含邮箱验证状态
func (c *RESTClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var out signInResponse
	err := c.call(ctx, "signInWithPassword", map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &Session{UID: out.LocalID, Email: out.Email, IDToken: out.IDToken}, nil
}

func (c *RESTClient) SendVerification(ctx context.Context, idToken string) error {
	return c.call(ctx, "sendOobCode", map[string]string{
		"requestType": "VERIFY_EMAIL",
		"idToken":     idToken,
	}, nil)
}

func (c *RESTClient) SendPasswordReset(ctx context.Context, email string) error {
	return c.call(ctx, "sendOobCode", map[string]string{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}
