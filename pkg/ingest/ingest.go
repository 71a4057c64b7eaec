// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"net/http"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"
	"github.com/uecboard/keiji/internal/httpx"
	"github.com/uecboard/keiji/internal/llm"
	"github.com/uecboard/keiji/internal/textwrap"
	"google.golang.org/genai"
)

var systemPrompt = genai.NewPartFromText("あなたは学内イベント情報を抽出するAIアシスタントです。")

var urlPromptTpl = template.Must(template.New("url").Parse(textwrap.Dedent(`
	以下のテキストから、大学のイベント情報を抽出し、JSON形式で出力してください。

	# 入力テキスト
	{{.Text}}

	# 注意事項
	- 情報が不足している場合は、合理的に推測してください。
	- 日付や時間の情報は可能な限り正確に抽出してください。
	- 今日の日付は{{.Today}}です。
	`)[1:]))

var imagePromptTpl = template.Must(template.New("image").Parse(textwrap.Dedent(`
	提供された画像（イベントチラシ）から、大学のイベント情報を抽出し、JSON形式で出力してください。

	# 注意事項
	- 画像から明確に読み取れない情報は必ずnullを設定してください。
	- 日付や時間の情報は可能な限り正確に抽出してください。年が記載されていない場合は{{.Year}}年と仮定してください。
	- 今日の日付は{{.Today}}です。
	- 画像が不鮮明で読み取れない場合は、該当項目をnullにしてください。
	`)[1:]))

// eventSchema constrains extraction output. Per-field guidance rides on
// the property descriptions.
var eventSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"event_name":       {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "イベント名"},
		"event_date_start": {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "イベント開始日時（ISO 8601形式：YYYY-MM-DDThh:mm:ss）"},
		"event_date_end":   {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "イベント終了日時（ISO 8601形式：YYYY-MM-DDThh:mm:ss）、不明な場合はnull"},
		"location":         {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "開催場所"},
		"organizer":        {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "主催団体"},
		"target_audience":  {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "対象者、不明な場合はnull"},
		"summary":          {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "イベント内容の短い要約（100文字程度）"},
		"description":      {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "イベント内容の詳しい説明"},
		"tags":             {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "イベント内容に関連するタグ（例: #講演会, #音楽, #スポーツ）、推測できない場合は空配列"},
	},
	Required: []string{"event_name", "summary", "description", "tags"},
}

// Ingestor extracts event records from web pages and poster images.
type Ingestor struct {
	client *genai.Client
	http   httpx.BasicClient
	model  string
	now    func() time.Time
}

// IngestorConfig configures an Ingestor.
type IngestorConfig struct {
	// Client is the Gemini client used for extraction. Required.
	Client *genai.Client
	// HTTPClient fetches event pages. Defaults to http.DefaultClient.
	HTTPClient httpx.BasicClient
	// Model overrides the default extraction model.
	Model string
	// Now overrides the clock used to date prompts.
	Now func() time.Time
}

// NewIngestor returns an Ingestor for the given config.
func NewIngestor(config IngestorConfig) (*Ingestor, error) {
	if config.Client == nil {
		return nil, errors.New("gemini client is required")
	}
	base := config.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	model := config.Model
	if model == "" {
		model = llm.GeminiFlash
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Ingestor{
		client: config.Client,
		http:   &httpx.WithUserAgent{BasicClient: base, UserAgent: browserUserAgent},
		model:  model,
		now:    now,
	}, nil
}

// FromURL extracts an event record from a web page. Extraction
// failures degrade to a record carrying the error; only fetch and
// prompt failures are returned.
func (ig *Ingestor) FromURL(ctx context.Context, pageURL string) (*Event, error) {
	page, err := FetchPage(ctx, ig.http, pageURL)
	if err != nil {
		return nil, err
	}
	text, err := ExtractText(page)
	if err != nil {
		return nil, err
	}
	var prompt strings.Builder
	data := struct {
		Text  string
		Today string
	}{Text: text, Today: ig.today()}
	if err := urlPromptTpl.Execute(&prompt, data); err != nil {
		return nil, errors.Wrap(err, "rendering prompt")
	}
	return ig.extract(ctx, SourceURL, pageURL, genai.NewPartFromText(prompt.String())), nil
}

// FromImage extracts an event record from a poster image file.
func (ig *Ingestor) FromImage(ctx context.Context, imagePath string) (*Event, error) {
	data, mimeType, err := loadImage(imagePath)
	if err != nil {
		return nil, err
	}
	var prompt strings.Builder
	tplData := struct {
		Today string
		Year  int
	}{Today: ig.today(), Year: ig.now().Year()}
	if err := imagePromptTpl.Execute(&prompt, tplData); err != nil {
		return nil, errors.Wrap(err, "rendering prompt")
	}
	parts := []*genai.Part{
		genai.NewPartFromText(prompt.String()),
		genai.NewPartFromBytes(data, mimeType),
	}
	return ig.extract(ctx, SourceImage, imagePath, parts...), nil
}

func (ig *Ingestor) today() string {
	return ig.now().Format("2006年1月2日")
}

func (ig *Ingestor) extract(ctx context.Context, sourceType, sourceData string, parts ...*genai.Part) *Event {
	config := llm.WithSystemPrompt(&genai.GenerateContentConfig{
		ResponseSchema:   eventSchema,
		ResponseMIMEType: llm.JSONMIMEType,
		Temperature:      genai.Ptr[float32](0.2),
	}, systemPrompt)
	var event Event
	if err := llm.GenerateTypedContent(ctx, ig.client, ig.model, config, &event, parts...); err != nil {
		return &Event{
			SourceType: sourceType,
			SourceData: sourceData,
			Tags:       []string{},
			Error:      err.Error(),
		}
	}
	event.SourceType = sourceType
	event.SourceData = sourceData
	if event.Tags == nil {
		event.Tags = []string{}
	}
	return &event
}

func loadImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "reading image")
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", errors.Errorf("%s is not an image (%s)", path, mimeType)
	}
	return data, mimeType, nil
}
