package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LogRotator 带大小上限的日志文件写入器
// 超限时乒乓轮转: 只保留一个 .old 备份，磁盘占用有界
type LogRotator struct {
	filename    string
	maxSize     int64
	file        *os.File
	mu          sync.Mutex
	currentSize int64
}

// NewLogRotator 创建日志轮转器 (maxSize 单位 MB)
func NewLogRotator(filename string, maxSizeMB int) (*LogRotator, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	r := &LogRotator{
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
	}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *LogRotator) openFile() error {
	file, err := os.OpenFile(r.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	r.file = file
	r.currentSize = stat.Size()
	return nil
}

func (r *LogRotator) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentSize+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			// 轮转失败时继续写当前文件
			fmt.Fprintf(os.Stderr, "Log rotation failed: %v\n", err)
		}
	}

	n, err = r.file.Write(p)
	r.currentSize += int64(n)
	return n, err
}

func (r *LogRotator) rotate() error {
	if r.file != nil {
		r.file.Close()
	}

	backupName := r.filename + ".old"
	os.Remove(backupName) // 文件可能不存在，忽略错误

	if err := os.Rename(r.filename, backupName); err != nil {
		return err
	}

	return r.openFile()
}

func (r *LogRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
