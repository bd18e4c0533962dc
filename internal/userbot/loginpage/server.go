// internal/userbot/loginpage/server.go
package loginpage

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gotd/td/session"
	"golang.org/x/time/rate"

	"signal-desk-bot/internal/core/domain/auth"
	"signal-desk-bot/internal/userbot"
	"signal-desk-bot/pkg/logger"
)

const claimsKey = "loginClaims"

// Tokens validates and retires one-time login links.
type Tokens interface {
	Verify(ctx context.Context, token string) (*auth.LoginClaims, error)
	Consume(ctx context.Context, claims *auth.LoginClaims) error
}

// Flow is one sign-in attempt over a live MTProto connection.
type Flow interface {
	SendCode(ctx context.Context, phone string) error
	SignIn(ctx context.Context, code string) (needPassword bool, err error)
	Password(ctx context.Context, password string) error
	Save(ctx context.Context, dst session.Storage) error
	Close()
}

// FlowStarter opens a new Flow.
type FlowStarter func(ctx context.Context) Flow

// Server is the one-time login page.
type Server struct {
	Router *gin.Engine

	tokens   Tokens
	start    FlowStarter
	sessions session.Storage
	limiter  *rate.Limiter

	baseCtx context.Context
	mu      sync.Mutex
	flows   map[string]Flow // by token id
}

func NewServer(ctx context.Context, tokens Tokens, start FlowStarter, sessions session.Storage) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(pages)

	s := &Server{
		Router:   r,
		tokens:   tokens,
		start:    start,
		sessions: sessions,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 10),
		baseCtx:  ctx,
		flows:    make(map[string]Flow),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	login := s.Router.Group("/login", s.rateLimit(), s.requireToken())
	login.GET("", s.showPhone)
	login.POST("/phone", s.submitPhone)
	login.POST("/code", s.submitCode)
	login.POST("/password", s.submitPassword)
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = c.PostForm("token")
		}
		claims, err := s.tokens.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Warn("⚠️ [Login] Rejected link from %s: %v", c.ClientIP(), err)
			c.HTML(http.StatusForbidden, "message", gin.H{
				"Title":   "Link not valid",
				"Message": "This link has expired or was already used. Ask the bot for a new one with /userbot setup.",
			})
			c.Abort()
			return
		}
		c.Set(claimsKey, claims)
		c.Set("token", token)
		c.Next()
	}
}

func claimsOf(c *gin.Context) *auth.LoginClaims {
	return c.MustGet(claimsKey).(*auth.LoginClaims)
}

type step struct {
	Title  string
	Label  string
	Field  string
	Input  string
	Action string
	Token  string
	Error  string
}

func (s *Server) render(c *gin.Context, status int, st step) {
	st.Token = c.GetString("token")
	c.HTML(status, "form", st)
}

func phoneStep() step {
	return step{Title: "Userbot sign-in", Label: "Phone number (international format)", Field: "phone", Input: "tel", Action: "/login/phone"}
}

func codeStep() step {
	return step{Title: "Login code", Label: "Code Telegram sent to the account", Field: "code", Input: "text", Action: "/login/code"}
}

func passwordStep() step {
	return step{Title: "Two-step verification", Label: "Cloud password", Field: "password", Input: "password", Action: "/login/password"}
}

func (s *Server) showPhone(c *gin.Context) {
	s.render(c, http.StatusOK, phoneStep())
}

func (s *Server) submitPhone(c *gin.Context) {
	phone := strings.TrimSpace(c.PostForm("phone"))
	if phone == "" {
		st := phoneStep()
		st.Error = "Enter the phone number."
		s.render(c, http.StatusBadRequest, st)
		return
	}

	claims := claimsOf(c)
	flow := s.start(s.baseCtx)
	s.mu.Lock()
	if old, ok := s.flows[claims.ID]; ok {
		old.Close()
	}
	s.flows[claims.ID] = flow
	s.mu.Unlock()

	if err := flow.SendCode(c.Request.Context(), phone); err != nil {
		logger.Warn("⚠️ [Login] Code request failed: %v", err)
		st := phoneStep()
		st.Error = "Telegram refused the number: " + err.Error()
		s.render(c, http.StatusBadGateway, st)
		return
	}
	s.render(c, http.StatusOK, codeStep())
}

func (s *Server) submitCode(c *gin.Context) {
	flow, ok := s.flow(c)
	if !ok {
		return
	}
	needPassword, err := flow.SignIn(c.Request.Context(), strings.TrimSpace(c.PostForm("code")))
	if err != nil {
		st := codeStep()
		st.Error = "Sign-in failed: " + err.Error()
		status := http.StatusBadGateway
		if errors.Is(err, userbot.ErrWrongCode) {
			status = http.StatusBadRequest
		}
		s.render(c, status, st)
		return
	}
	if needPassword {
		s.render(c, http.StatusOK, passwordStep())
		return
	}
	s.finish(c, flow)
}

func (s *Server) submitPassword(c *gin.Context) {
	flow, ok := s.flow(c)
	if !ok {
		return
	}
	if err := flow.Password(c.Request.Context(), c.PostForm("password")); err != nil {
		st := passwordStep()
		st.Error = "Password rejected: " + err.Error()
		status := http.StatusBadGateway
		if errors.Is(err, userbot.ErrWrongPassword) {
			status = http.StatusBadRequest
		}
		s.render(c, status, st)
		return
	}
	s.finish(c, flow)
}

// flow returns the attempt started by the phone step of this link.
func (s *Server) flow(c *gin.Context) (Flow, bool) {
	s.mu.Lock()
	flow, ok := s.flows[claimsOf(c).ID]
	s.mu.Unlock()
	if !ok {
		st := phoneStep()
		st.Error = "The sign-in was restarted, enter the phone number again."
		s.render(c, http.StatusConflict, st)
	}
	return flow, ok
}

func (s *Server) finish(c *gin.Context, flow Flow) {
	ctx := c.Request.Context()
	claims := claimsOf(c)
	if err := flow.Save(ctx, s.sessions); err != nil {
		logger.Error("❌ [Login] %v", err)
		c.HTML(http.StatusInternalServerError, "message", gin.H{
			"Title":   "Session not saved",
			"Message": "Signed in, but the session could not be stored: " + err.Error(),
		})
		return
	}
	if err := s.tokens.Consume(ctx, claims); err != nil {
		logger.Warn("⚠️ [Login] Link not retired: %v", err)
	}

	s.mu.Lock()
	delete(s.flows, claims.ID)
	s.mu.Unlock()
	flow.Close()

	logger.Info("✅ [Login] Userbot signed in by owner %d", claims.OwnerID())
	c.HTML(http.StatusOK, "message", gin.H{
		"Title":   "Done",
		"Message": "The userbot session is stored. The sender picks it up within a minute; you can close this page.",
	})
}

// Close ends every open attempt.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, flow := range s.flows {
		flow.Close()
		delete(s.flows, id)
	}
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("🌐 [Login] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	return srv.Shutdown(shutdownCtx)
}

var pages = template.Must(template.New("pages").Parse(`
{{define "head"}}<!doctype html><html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title><style>body{font-family:sans-serif;max-width:28rem;margin:3rem auto;padding:0 1rem}
input{width:100%;padding:.5rem;margin:.5rem 0}.err{color:#b00020}</style></head><body>{{end}}
{{define "form"}}{{template "head" .}}<h2>{{.Title}}</h2>
{{if .Error}}<p class="err">{{.Error}}</p>{{end}}
<form method="post" action="{{.Action}}"><input type="hidden" name="token" value="{{.Token}}">
<label>{{.Label}}<input type="{{.Input}}" name="{{.Field}}" autocomplete="off" autofocus required></label>
<button type="submit">Continue</button></form></body></html>{{end}}
{{define "message"}}{{template "head" .}}<h2>{{.Title}}</h2><p>{{.Message}}</p></body></html>{{end}}
`))
