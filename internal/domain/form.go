package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Form はフォームエンティティを表す。
// Teams に所属するユーザーの有効な暗号鍵が受信者になる。
type Form struct {
	ID            string
	Name          string
	Description   string
	RenderingCode string
	Active        bool
	TeamIDs       []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FormSubmission は署名済みの送信データを表す。作成後は変更しない。
type FormSubmission struct {
	ID             string
	FormID         string
	EncryptedData  string
	Envelope       string
	Signature      string
	SignatureKeyID string
	SubmittedAt    time.Time
}

// Envelope はサーバーが署名する送信データの正規形を表す。
// フィールドの並び順がそのままシリアライズ順になるため、順序を変えてはならない。
type Envelope struct {
	FormData             string   `json:"form_data"`
	Timestamp            string   `json:"timestamp"`
	PublicKeyServer      string   `json:"public_key_server"`
	PublicKeysRecipients []string `json:"public_keys_recipients"`
	FormID               string   `json:"form_id"`
	FormName             string   `json:"form_name"`
}

// EnvelopeTimestamp は封筒に埋め込む時刻表現(ISO-8601, UTC)を返す。
func EnvelopeTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// Canonical は署名対象となるバイト列を返す。
// HTMLエスケープは行わず、末尾の改行も含めない。
func (e *Envelope) Canonical() ([]byte, error) {
	recipients := e.PublicKeysRecipients
	if recipients == nil {
		recipients = []string{}
	}
	env := *e
	env.PublicKeysRecipients = recipients

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&env); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// SignedSubmission は送信に対する応答を表す。
type SignedSubmission struct {
	SubmissionID string
	Envelope     string
	Signature    string
}
