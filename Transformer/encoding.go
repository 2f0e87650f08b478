package Transformer

import (
	"log"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

func GbkToUtf8(s string) string {
	gbkDecoder := simplifiedchinese.GBK.NewDecoder()
	utf8String, _, err := transform.String(gbkDecoder, s)
	if err != nil {
		// 解码失败时返回原始字符串
		return s
	}
	return utf8String
}

func detectEncoding(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil {
		log.Printf("编码检测失败: %v", err)
		return "UTF-8"
	}
	return result.Charset
}
