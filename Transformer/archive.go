package Transformer

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver/v3"
)

// Unzip 解压上传的压缩包到同名目录，返回目录路径
func Unzip(src string) (string, error) {
	ext := strings.ToLower(filepath.Ext(src))
	switch ext {
	case ".zip":
		return unzipZip(src)
	case ".rar":
		return unzipRar(src)
	default:
		return "", errors.New("Unsupported archive format")
	}
}

func unpackDir(src string) string {
	dirpath, _ := filepath.Split(src)
	fileName := filepath.Base(src)
	fileExt := filepath.Ext(src)
	return filepath.Join(dirpath, fileName[0:len(fileName)-len(fileExt)])
}

func unzipZip(src string) (string, error) {
	unpath := unpackDir(src)
	if _, err := os.Stat(unpath); os.IsNotExist(err) {
		if err := os.Mkdir(unpath, os.ModePerm); err != nil {
			return "", err
		}
	}

	reader, err := zip.OpenReader(src)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := extractFile(file, unpath); err != nil {
			return "", err
		}
	}
	return unpath, nil
}

func extractFile(zf *zip.File, dest string) error {
	fpath := filepath.Join(dest, zf.Name)

	// 防止解压到目标目录之外
	if !strings.HasPrefix(fpath, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("%s: illegal file path", fpath)
	}

	if zf.FileInfo().IsDir() {
		return os.MkdirAll(fpath, os.ModePerm)
	}
	if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
		return err
	}
	outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, zf.Mode())
	if err != nil {
		return err
	}
	defer outFile.Close()
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(outFile, rc)
	return err
}

func unzipRar(src string) (string, error) {
	unpath := unpackDir(src)
	if err := archiver.Unarchive(src, unpath); err != nil {
		return "", err
	}
	return unpath, nil
}

// FindFiles 在目录下递归查找指定扩展名的文件
func FindFiles(dir string, ext string) []string {
	var files []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.EqualFold(strings.TrimPrefix(filepath.Ext(path), "."), ext) {
			files = append(files, path)
		}
		return nil
	})
	return files
}
