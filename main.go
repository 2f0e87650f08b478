package main

import (
	"log"

	"github.com/GrainArc/GeoPorter/config"
	"github.com/GrainArc/GeoPorter/models"
	"github.com/GrainArc/GeoPorter/routers"
	"github.com/gin-gonic/gin"
)

func main() {
	if err := config.Load("config.xml"); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	models.InitDB()
	if err := models.InitSessionDB(); err != nil {
		log.Fatalf("初始化会话库失败: %v", err)
	}

	r := gin.Default()
	routers.ImportRouters(r)
	if err := r.Run(config.ListenAddr); err != nil {
		log.Fatalf("服务启动失败: %v", err)
	}
}
