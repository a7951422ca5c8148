package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/ivlev/lyric2video/internal/compositor"
	"github.com/ivlev/lyric2video/internal/config"
	"github.com/ivlev/lyric2video/internal/endcard"
	"github.com/ivlev/lyric2video/internal/export"
	"github.com/ivlev/lyric2video/internal/preview"
	"github.com/ivlev/lyric2video/internal/source"
	"github.com/ivlev/lyric2video/internal/system"
	"github.com/ivlev/lyric2video/internal/timeline"
)

func main() {
	// .env — опционально, для SHARE_URL и прочего окружения
	godotenv.Load()

	// Увеличиваем лимиты системы (для macOS/Linux)
	system.InitResourceLimits()

	// Создаем нужные директории, если их нет
	dirs := []string{"input/audio", "input/timeline", "output"}
	for _, d := range dirs {
		os.MkdirAll(d, 0755)
	}

	audioPtr := flag.String("audio", "", "Путь к аудио (по умолчанию: самый свежий файл в input/audio/)")
	timelinePtr := flag.String("timeline", "", "Путь к таймлайну .json или сценарию .yaml (по умолчанию: самый свежий файл в input/timeline/)")
	outputPtr := flag.String("output", "", "Путь к видео (если пусто, генерируется автоматически в output/)")
	titlePtr := flag.String("title", "", "Название трека (по умолчанию: из имени аудиофайла)")
	widthPtr := flag.Int("width", 1280, "Ширина")
	heightPtr := flag.Int("height", 720, "Высота")
	fpsPtr := flag.Int("fps", 30, "FPS")
	presetPtr := flag.String("preset", "", "Пресет формата: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram)")
	stylePtr := flag.String("style", "", "Путь к YAML-файлу стиля (шрифт, цвета, подложка)")
	previewPtr := flag.String("preview", "", "Адрес HTTP-превью, например :8080 (вместо экспорта)")
	endCardPtr := flag.Bool("endcard", false, "Добавить финальную заставку с названием и QR-кодом")
	endCardMsPtr := flag.Int64("endcard-ms", 4000, "Длительность финальной заставки (мс)")
	shareURLPtr := flag.String("share-url", os.Getenv("SHARE_URL"), "Ссылка для QR-кода на заставке")
	qualityPtr := flag.Int("quality", 0, "Качество видео (0 - авто, x264/vp9: CRF, VideoToolbox: битрейт = Q*100кбит/с)")
	workersPtr := flag.Int("workers", runtime.NumCPU(), "Потоки декодирования изображений")
	saveScenarioPtr := flag.String("save-scenario", "", "Сохранить нормализованный таймлайн как YAML-сценарий")

	flag.Parse()

	width, height := *widthPtr, *heightPtr
	switch *presetPtr {
	case "16:9":
		width, height = 1280, 720
	case "9:16":
		width, height = 720, 1280
	case "4:5":
		width, height = 1080, 1350
	}

	audioPath := *audioPtr
	if audioPath == "" {
		latest, err := system.FindLatestAudio("input/audio")
		if err != nil {
			log.Fatalf("[-] Ошибка: %v. Положите аудио в input/audio/", err)
		}
		audioPath = latest
		fmt.Printf("[*] Выбрано аудио: %s\n", audioPath)
	}

	audioMs, err := system.GetAudioDuration(audioPath)
	if err != nil {
		log.Fatalf("[-] Не удалось получить длительность аудио: %v", err)
	}
	fmt.Printf("[*] Длительность аудио: %.2fs\n", float64(audioMs)/1000)

	timelinePath := *timelinePtr
	if timelinePath == "" {
		latest, err := system.FindLatestTimeline("input/timeline")
		if err != nil {
			log.Fatalf("[-] Ошибка: %v. Положите таймлайн в input/timeline/", err)
		}
		timelinePath = latest
		fmt.Printf("[*] Выбран таймлайн: %s\n", timelinePath)
	}

	tl, err := loadTimeline(timelinePath, audioMs)
	if err != nil {
		log.Fatalf("[-] Ошибка загрузки таймлайна: %v", err)
	}
	fmt.Printf("[*] Таймлайн: %d сцен, %d строк\n", len(tl.Scenes), len(tl.Lyrics))

	if *saveScenarioPtr != "" {
		if err := timeline.WriteScenario(tl, *saveScenarioPtr); err != nil {
			log.Fatalf("[-] Не удалось сохранить сценарий: %v", err)
		}
		fmt.Printf("[*] Сценарий сохранён: %s\n", *saveScenarioPtr)
	}

	style, err := config.LoadStyle(*stylePtr)
	if err != nil {
		log.Fatalf("[-] Ошибка стиля: %v", err)
	}

	title := *titlePtr
	if title == "" {
		base := filepath.Base(audioPath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	var card *endcard.Card
	if *endCardPtr {
		card, err = endcard.New(title, *shareURLPtr, *endCardMsPtr)
		if err != nil {
			log.Fatalf("[-] Ошибка заставки: %v", err)
		}
	}

	// Декодируем все изображения заранее; битые кадры не прерывают рендер.
	cache := source.NewImageCache()
	cache.Preload(context.Background(), tl.ImageURIs(), *workersPtr)
	for _, uri := range tl.ImageURIs() {
		if err := cache.Err(uri); err != nil {
			log.Printf("[!] Изображение %.48s не загружено: %v", uri, err)
		}
	}

	if *previewPtr != "" {
		runPreview(*previewPtr, tl, cache, style, card, audioPath, width, height)
		return
	}

	encoderName, container := system.ProbeFormat()
	if encoderName != "libx264" {
		fmt.Printf("[*] Обнаружен энкодер: %s (контейнер %s)\n", encoderName, container)
	}

	quality := *qualityPtr
	if quality == 0 {
		switch encoderName {
		case "h264_videotoolbox":
			quality = 75
		case "h264_nvenc":
			quality = 28
		case "libvpx-vp9":
			quality = 32
		default:
			quality = 23
		}
	}

	finalOutput := *outputPtr
	if finalOutput == "" {
		cleanName := strings.ReplaceAll(title, " ", "_")
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		finalOutput = filepath.Join("output", fmt.Sprintf("%s_%s.%s", cleanName, timestamp, container))
	}

	cfg := &config.Config{
		AudioPath:    audioPath,
		TimelinePath: timelinePath,
		OutputVideo:  finalOutput,
		Title:        title,
		Width:        width,
		Height:       height,
		FPS:          *fpsPtr,
		DurationMs:   audioMs,
		Workers:      *workersPtr,
		PreviewAddr:  *previewPtr,
		EndCard:      *endCardPtr,
		EndCardMs:    *endCardMsPtr,
		ShareURL:     *shareURLPtr,
		VideoEncoder: encoderName,
		Container:    container,
		Quality:      quality,
		Style:        style,
	}

	params := config.ExportParams{
		Width:        cfg.Width,
		Height:       cfg.Height,
		FPS:          cfg.FPS,
		DurationMs:   cfg.DurationMs,
		AudioPath:    cfg.AudioPath,
		OutputPath:   cfg.OutputVideo,
		VideoEncoder: cfg.VideoEncoder,
		Container:    cfg.Container,
		Quality:      cfg.Quality,
	}

	if err := runExport(tl, cache, cfg.Style, card, params); err != nil {
		log.Fatalf("[-] Ошибка экспорта: %v", err)
	}
	fmt.Printf("[+++] Успех! Результат: %s\n", cfg.OutputVideo)
}

// loadTimeline accepts both the collaborator JSON payload and the authored
// YAML scenario, by extension.
func loadTimeline(path string, audioMs int64) (*timeline.Timeline, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		tl, err := timeline.ReadScenario(path)
		if err != nil {
			return nil, err
		}
		if tl.DurationMs <= 0 {
			return timeline.New(tl.Scenes, tl.Lyrics, audioMs)
		}
		return tl, nil
	}
	return timeline.Load(path, audioMs)
}

func runPreview(addr string, tl *timeline.Timeline, cache *source.ImageCache, style *config.Style, card *endcard.Card, audioPath string, width, height int) {
	comp, err := compositor.New(tl, cache, style)
	if err != nil {
		log.Fatalf("[-] Ошибка композитора: %v", err)
	}
	if card != nil {
		comp.SetEndCard(card)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	clock := preview.NewPlaybackClock(comp.TotalMs())
	srv := preview.NewServer(clock, audioPath, logger)
	loop := preview.NewLoop(clock, comp, width, height, 30, srv.ObserveFrame)
	srv.AttachLoop(loop)
	loop.RenderOnce()

	fmt.Printf("[*] Превью: http://localhost%s/preview\n", addr)
	if err := srv.ListenAndServe(addr); err != nil {
		log.Fatalf("[-] Ошибка превью-сервера: %v", err)
	}
}

func runExport(tl *timeline.Timeline, cache *source.ImageCache, style *config.Style, card *endcard.Card, params config.ExportParams) error {
	pipeline := export.NewPipeline(cache)

	bar := progressbar.NewOptions64(100,
		progressbar.OptionSetDescription("Экспорт"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
	)

	errCh := make(chan error, 1)
	job, err := pipeline.Start(tl, style, params, card, export.Callbacks{
		OnProgress: func(p float64, _ int64) {
			bar.Set64(int64(p * 100))
		},
		OnComplete: func(string) { errCh <- nil },
		OnCancel:   func() { errCh <- fmt.Errorf("экспорт отменён") },
		OnError:    func(err error) { errCh <- err },
	})
	if err != nil {
		return err
	}

	// Ctrl+C отменяет задание; незаконченный файл удаляется.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n[!] Прерывание: отменяем экспорт...")
		job.Cancel()
	}()

	result := <-errCh
	signal.Stop(sigCh)
	bar.Finish()
	fmt.Println()
	return result
}
