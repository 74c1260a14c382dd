package execution

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Request 是送往外部執行服務的請求體（piston execute 格式）
type Request struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Files    []File `json:"files"`
	Stdin    string `json:"stdin"`
}

// File 是執行請求中的單一程式檔
type File struct {
	Content string `json:"content"`
}

// runResult / errorResponse 是執行失敗時合成的回應
// 形狀跟成功回應的 run.output 一致，前端只需要處理一種回應格式
type runResult struct {
	Output string `json:"output"`
}

type errorResponse struct {
	Run runResult `json:"run"`
}

// Client 負責把文件轉送給外部執行服務並取回結果
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient 建立執行服務客戶端
// timeout 限制整個外部呼叫的時長，避免一次執行卡住整個房間的回饋
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Run 送出一次執行請求，永遠回傳一個可以廣播的回應物件：
// 成功時是外部服務的原始回應，任何失敗（網路、逾時、非 2xx、
// 回應無法解析）都折疊成帶錯誤訊息的 error 形狀回應
func (c *Client) Run(language, version, code, input string) interface{} {
	body, err := json.Marshal(Request{
		Language: language,
		Version:  version,
		Files:    []File{{Content: code}},
		Stdin:    input,
	})
	if err != nil {
		return errorResult("Error: " + err.Error())
	}

	resp, err := c.httpClient.Post(c.url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("Execution request failed: %v", err)
		return errorResult("Error: " + err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		log.Printf("Execution service returned status %d", resp.StatusCode)
		return errorResult(fmt.Sprintf("Error: execution service returned status %d", resp.StatusCode))
	}

	// 原樣轉發外部服務的回應內容
	var payload json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Printf("Error decoding execution response: %v", err)
		return errorResult("Error: invalid response from execution service")
	}
	return payload
}

func errorResult(message string) errorResponse {
	return errorResponse{Run: runResult{Output: message}}
}
