package core

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"notebooker/models"
)

// AsyncDBLogger 异步数据库日志记录器
// LLM 交互记录和请求日志都经由它批量落库，避免阻塞请求路径
type AsyncDBLogger struct {
	db        *gorm.DB
	interChan chan *models.LLMInteraction
	reqChan   chan *models.RequestLog
	logger    *logrus.Logger
	batchSize int
	flushTime time.Duration
	wg        sync.WaitGroup
	quit      chan struct{}
}

// NewAsyncDBLogger 创建异步日志记录器并启动后台 Worker
func NewAsyncDBLogger(db *gorm.DB, logger *logrus.Logger) *AsyncDBLogger {
	l := &AsyncDBLogger{
		db:        db,
		interChan: make(chan *models.LLMInteraction, 1000),
		reqChan:   make(chan *models.RequestLog, 1000),
		logger:    logger,
		batchSize: 50,
		flushTime: 5 * time.Second,
		quit:      make(chan struct{}),
	}
	l.startWorker()
	return l
}

// LogInteraction 提交一条 LLM 交互记录
func (l *AsyncDBLogger) LogInteraction(rec *models.LLMInteraction) {
	select {
	case l.interChan <- rec:
	default:
		l.logger.Warn("Interaction channel full, dropping record")
	}
}

// LogRequest 提交一条请求日志
func (l *AsyncDBLogger) LogRequest(log *models.RequestLog) {
	select {
	case l.reqChan <- log:
	default:
		l.logger.Warn("Request log channel full, dropping record")
	}
}

func (l *AsyncDBLogger) startWorker() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.workerLoop()
	}()
}

func (l *AsyncDBLogger) workerLoop() {
	var inters []*models.LLMInteraction
	var reqs []*models.RequestLog
	timer := time.NewTicker(l.flushTime)
	defer timer.Stop()

	for {
		select {
		case rec := <-l.interChan:
			inters = append(inters, rec)
			if len(inters) >= l.batchSize {
				l.flushInteractions(inters)
				inters = nil
			}
		case log := <-l.reqChan:
			reqs = append(reqs, log)
			if len(reqs) >= l.batchSize {
				l.flushRequests(reqs)
				reqs = nil
			}
		case <-timer.C:
			if len(inters) > 0 {
				l.flushInteractions(inters)
				inters = nil
			}
			if len(reqs) > 0 {
				l.flushRequests(reqs)
				reqs = nil
			}
		case <-l.quit:
			// 退出前刷新剩余日志
			if len(inters) > 0 {
				l.flushInteractions(inters)
			}
			if len(reqs) > 0 {
				l.flushRequests(reqs)
			}
			return
		}
	}
}

func (l *AsyncDBLogger) flushInteractions(recs []*models.LLMInteraction) {
	if err := l.db.CreateInBatches(recs, len(recs)).Error; err != nil {
		l.logger.Errorf("[Logger] Failed to flush interactions: %v", err)
	}
}

func (l *AsyncDBLogger) flushRequests(logs []*models.RequestLog) {
	if err := l.db.CreateInBatches(logs, len(logs)).Error; err != nil {
		l.logger.Errorf("[Logger] Failed to flush request logs: %v", err)
	}

	// 严格清理: 只保留最新的 500 条，数据库不随时间膨胀
	go func() {
		var count int64
		l.db.Model(&models.RequestLog{}).Count(&count)
		if count > 500 {
			var pivotID uint
			l.db.Model(&models.RequestLog{}).Select("id").Order("id desc").Offset(500).Limit(1).Scan(&pivotID)
			if pivotID > 0 {
				l.db.Where("id <= ?", pivotID).Delete(&models.RequestLog{})
			}
		}
	}()
}

// Close 刷新剩余日志并关闭后台 Worker
func (l *AsyncDBLogger) Close() {
	close(l.quit)
	l.wg.Wait()
}
