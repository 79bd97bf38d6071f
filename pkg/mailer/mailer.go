// Package mailer はSMTP経由のメール送信を提供する。
// 認証情報が未設定の場合は送信をスキップする。送信失敗の扱いは呼び出し側に委ねる。
package mailer

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPMailer はSTARTTLS + PLAIN認証でメールを送信するメーラー。
type SMTPMailer struct {
	// host はSMTPサーバーのホスト名。
	host string
	// port はSMTPサーバーのポート番号。
	port int
	// user はSMTP認証のユーザー名。
	user string
	// pass はSMTP認証のパスワード。
	pass string
	// from はメールのFromアドレス。空の場合はuserを使用する。
	from string
	// send は実際の送信処理。テストで差し替える。
	send func(addr string, a sasl.Client, from string, to []string, r io.Reader) error
}

// New は新しいSMTPメーラーを生成する。fromが空の場合、Fromアドレスにはuserを使用する。
func New(host string, port int, user, pass, from string) *SMTPMailer {
	if from == "" {
		from = user
	}
	return &SMTPMailer{
		host: host,
		port: port,
		user: user,
		pass: pass,
		from: from,
		send: smtp.SendMail,
	}
}

// Enabled はメール送信が設定されているかどうかを返す。
// ユーザー名とパスワードの両方が設定されている場合のみ有効。
func (m *SMTPMailer) Enabled() bool {
	return m.user != "" && m.pass != ""
}

// Send は指定の宛先にHTML形式のメールを送信する。
// 送信が無効な場合は何もせずnilを返す。
func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	if !m.Enabled() {
		return nil
	}

	msg, err := buildMessage(m.from, to, subject, htmlBody)
	if err != nil {
		return fmt.Errorf("メールメッセージの構築に失敗: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := sasl.NewPlainClient("", m.user, m.pass)
	if err := m.send(addr, auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("メールの送信に失敗 (to=%s): %w", to, err)
	}
	return nil
}

// buildMessage はRFC 5322形式のHTMLメールメッセージを構築する。
func buildMessage(from, to, subject, htmlBody string) (io.Reader, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, htmlBody); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
