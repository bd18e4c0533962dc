// internal/userbot/login.go
package userbot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"signal-desk-bot/pkg/logger"
)

// ErrWrongCode is returned for an invalid or expired login code.
var ErrWrongCode = errors.New("login code is invalid or expired")

// ErrWrongPassword is returned when the two-step password does not match.
var ErrWrongPassword = errors.New("two-step password is incorrect")

type loginCall struct {
	fn     func(ctx context.Context, client *telegram.Client) error
	result chan error
}

// LoginFlow signs a user account in over one MTProto connection, step by step.
// The session is kept in memory until Save copies it to the durable storage.
type LoginFlow struct {
	storage *session.StorageMemory
	calls   chan loginCall
	done    chan struct{}
	cancel  context.CancelFunc

	mu       sync.Mutex
	runErr   error
	phone    string
	codeHash string
}

// StartLogin opens the connection used by every following step.
func StartLogin(ctx context.Context, appID int, appHash string) *LoginFlow {
	storage := new(session.StorageMemory)
	client := telegram.NewClient(appID, appHash, telegram.Options{SessionStorage: storage})
	ctx, cancel := context.WithCancel(ctx)

	f := &LoginFlow{
		storage: storage,
		calls:   make(chan loginCall),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go func() {
		defer close(f.done)
		err := client.Run(ctx, func(ctx context.Context) error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case call := <-f.calls:
					call.result <- call.fn(ctx, client)
				}
			}
		})
		f.mu.Lock()
		f.runErr = err
		f.mu.Unlock()
	}()
	return f
}

func (f *LoginFlow) do(ctx context.Context, fn func(ctx context.Context, client *telegram.Client) error) error {
	call := loginCall{fn: fn, result: make(chan error, 1)}
	select {
	case f.calls <- call:
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return fmt.Errorf("login connection closed: %v", f.runErr)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-call.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendCode asks Telegram to send a login code to phone.
func (f *LoginFlow) SendCode(ctx context.Context, phone string) error {
	return f.do(ctx, func(ctx context.Context, client *telegram.Client) error {
		sent, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
		if err != nil {
			return fmt.Errorf("LoginFlow.SendCode: %w", err)
		}
		code, ok := sent.(*tg.AuthSentCode)
		if !ok {
			return fmt.Errorf("LoginFlow.SendCode: unexpected answer %T", sent)
		}
		f.mu.Lock()
		f.phone, f.codeHash = phone, code.PhoneCodeHash
		f.mu.Unlock()
		logger.Info("📲 [Login] Code sent")
		return nil
	})
}

// SignIn submits the code. needPassword means two-step verification is on.
func (f *LoginFlow) SignIn(ctx context.Context, code string) (needPassword bool, err error) {
	err = f.do(ctx, func(ctx context.Context, client *telegram.Client) error {
		f.mu.Lock()
		phone, hash := f.phone, f.codeHash
		f.mu.Unlock()
		if hash == "" {
			return errors.New("LoginFlow.SignIn: no code was requested")
		}
		_, err := client.Auth().SignIn(ctx, phone, code, hash)
		switch {
		case errors.Is(err, auth.ErrPasswordAuthNeeded):
			needPassword = true
			return nil
		case err != nil && tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EXPIRED", "PHONE_CODE_EMPTY"):
			return ErrWrongCode
		case err != nil:
			return fmt.Errorf("LoginFlow.SignIn: %w", err)
		}
		return nil
	})
	return needPassword, err
}

// Password completes two-step verification.
func (f *LoginFlow) Password(ctx context.Context, password string) error {
	return f.do(ctx, func(ctx context.Context, client *telegram.Client) error {
		_, err := client.Auth().Password(ctx, password)
		switch {
		case errors.Is(err, auth.ErrPasswordInvalid):
			return ErrWrongPassword
		case err != nil:
			return fmt.Errorf("LoginFlow.Password: %w", err)
		}
		return nil
	})
}

// Save copies the signed-in session into dst.
func (f *LoginFlow) Save(ctx context.Context, dst session.Storage) error {
	data, err := f.storage.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("LoginFlow.Save: %w", err)
	}
	if err := dst.StoreSession(ctx, data); err != nil {
		return fmt.Errorf("LoginFlow.Save: %w", err)
	}
	logger.Info("💾 [Login] Session stored")
	return nil
}

// Close drops the connection.
func (f *LoginFlow) Close() {
	f.cancel()
	<-f.done
}
