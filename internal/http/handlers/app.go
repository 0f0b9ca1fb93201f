// Package handlers carries the HTTP surface: job submission, job inspection,
// artifact downloads, the live stream endpoint, and card extraction.
package handlers

import (
	"encoding/json"
	"net/http"

	"cardforge/internal/infra"
	"cardforge/internal/jobs"
	"cardforge/internal/middleware"
)

type App struct {
	Config *infra.Config
	Logger infra.Logger
	Store  *jobs.Store
	Runner *jobs.Runner
}

func NewApp(cfg *infra.Config, logger infra.Logger, store *jobs.Store, runner *jobs.Runner) *App {
	return &App{Config: cfg, Logger: logger, Store: store, Runner: runner}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]string{"error": errCode, "message": msg})
}

// localized error messages, keyed by message id then locale. zh-TW is the
// product's home locale and doubles as the fallback.
var messages = map[string]map[string]string{
	"input_required": {
		"zh-TW": "請提供原始資料（文字或檔案）",
		"en":    "input text or file is required",
	},
	"base_image_not_png": {
		"zh-TW": "底圖必須是 PNG 檔案",
		"en":    "base image must be a PNG file",
	},
	"file_not_png": {
		"zh-TW": "請上傳 PNG 格式的角色卡",
		"en":    "uploaded file must be a PNG character card",
	},
	"file_required": {
		"zh-TW": "請上傳檔案",
		"en":    "file is required",
	},
	"no_card_data": {
		"zh-TW": "圖片內沒有角色卡資料",
		"en":    "image carries no character card data",
	},
	"card_data_corrupt": {
		"zh-TW": "角色卡資料已損壞，無法解析",
		"en":    "embedded card data is corrupt",
	},
	"job_not_found": {
		"zh-TW": "找不到此任務",
		"en":    "job not found",
	},
	"job_not_completed": {
		"zh-TW": "任務尚未完成",
		"en":    "job is not completed yet",
	},
	"internal": {
		"zh-TW": "伺服器發生錯誤",
		"en":    "internal server error",
	},
}

// message resolves a message id for the request locale.
func message(r *http.Request, id string) string {
	locale := middleware.LocaleFromContext(r.Context())
	if byLocale, ok := messages[id]; ok {
		if msg, ok := byLocale[locale]; ok {
			return msg
		}
		return byLocale["zh-TW"]
	}
	return id
}
