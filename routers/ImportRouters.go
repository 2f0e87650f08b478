package routers

import (
	"github.com/GrainArc/GeoPorter/views"
	"github.com/gin-gonic/gin"
)

func ImportRouters(r *gin.Engine) {
	UserController := &views.UserController{}
	importRouter := r.Group("/import")
	{
		importRouter.POST("/UploadAndImport", UserController.UploadAndImport)
		importRouter.GET("/ImportProgress", UserController.ImportProgress)
		importRouter.GET("/GetDatasets", UserController.GetDatasets)
		importRouter.GET("/ExportDataset", UserController.ExportDataset)
	}
}
