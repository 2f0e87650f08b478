package config

import (
	"encoding/xml"
	"fmt"
	"os"
)

var DSN string
var Download string
var SessionDB string
var ListenAddr string
var MainConfig Config

type Config struct {
	XMLName    xml.Name `xml:"config"`
	Dbname     string   `xml:"dbname"`
	Host       string   `xml:"host"`
	Port       string   `xml:"port"`
	Username   string   `xml:"user"`
	Password   string   `xml:"password"`
	Download   string   `xml:"download"`
	SessionDB  string   `xml:"sessiondb"`
	ListenAddr string   `xml:"listen"`
}

// Load 读取config.xml并初始化全局配置
func Load(path string) error {
	xmlFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer xmlFile.Close()

	xmlDecoder := xml.NewDecoder(xmlFile)
	if err = xmlDecoder.Decode(&MainConfig); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	Download = MainConfig.Download
	if Download == "" {
		Download = "Upload"
	}
	SessionDB = MainConfig.SessionDB
	if SessionDB == "" {
		SessionDB = "sessions.db"
	}
	ListenAddr = MainConfig.ListenAddr
	if ListenAddr == "" {
		ListenAddr = ":8426"
	}

	DSN = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		MainConfig.Host, MainConfig.Username, MainConfig.Password, MainConfig.Dbname, MainConfig.Port)
	return nil
}
